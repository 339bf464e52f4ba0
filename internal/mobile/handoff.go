// Package mobile handles the URL-token hand-off the mobile wrapper uses to
// pass its tokens into a web session.
package mobile

import (
	"errors"
	"net/url"
	"strings"
)

// ErrMissingToken is returned when the hand-off carries no access token.
var ErrMissingToken = errors.New("token is required")

// Handoff is the parsed hand-off query.
type Handoff struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	AccountID    string
	Redirect     string
}

// ParseHandoff reads a hand-off from the query. The redirect is always
// sanitised; see SanitizeRedirect.
func ParseHandoff(q url.Values) (Handoff, error) {
	h := Handoff{
		AccessToken:  strings.TrimSpace(q.Get("token")),
		RefreshToken: strings.TrimSpace(q.Get("refreshToken")),
		UserID:       strings.TrimSpace(q.Get("userId")),
		AccountID:    strings.TrimSpace(q.Get("accountId")),
		Redirect:     SanitizeRedirect(q.Get("redirect")),
	}
	if h.AccessToken == "" {
		return Handoff{}, ErrMissingToken
	}
	return h, nil
}

// SanitizeRedirect returns target when it is a same-origin absolute path and
// "/" otherwise. Query parameters that carry tokens are stripped.
func SanitizeRedirect(target string) string {
	target = strings.TrimSpace(target)
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return "/"
	}
	if strings.ContainsAny(target, "\\\r\n\t") {
		return "/"
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "/"
	}
	q := u.Query()
	for _, k := range []string{"token", "refreshToken", "accessToken"} {
		q.Del(k)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
