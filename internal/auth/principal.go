package auth

import "context"

// Source says where a principal's bearer came from.
type Source string

const (
	SourceHeader  Source = "header"
	SourceSession Source = "session"
	SourceService Source = "service"
)

// Principal is the caller on whose behalf the BFF talks to the backend.
type Principal struct {
	Bearer    string
	UserID    string
	AccountID string
	Source    Source
}

// Authenticated reports whether a bearer is available.
func (p Principal) Authenticated() bool { return p.Bearer != "" }

// CacheKey scopes cached reads to the bearer. The user id is client supplied
// and is not part of the key. The raw token never appears.
func (p Principal) CacheKey() string {
	if p.Bearer != "" {
		return tokenFingerprint(p.Bearer)
	}
	return "anon"
}

type principalKey struct{}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored on ctx.
func PrincipalFrom(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}
