package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExtractBearer returns the token from an "Authorization: Bearer" header.
func ExtractBearer(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature;
// the backend owns verification. ok is false for opaque tokens or tokens
// without exp.
func TokenExpiry(token string) (exp time.Time, ok bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// IsStale reports whether token expires within skew of now. Tokens whose
// expiry cannot be read are treated as fresh.
func IsStale(token string, now time.Time, skew time.Duration) bool {
	exp, ok := TokenExpiry(token)
	if !ok {
		return false
	}
	return !now.Add(skew).Before(exp)
}

// tokenFingerprint is a short, non-reversible label for a token.
func tokenFingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "t-" + hex.EncodeToString(sum[:8])
}
