package mobile

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHandoff(t *testing.T) {
	q := url.Values{
		"token":        {" access "},
		"refreshToken": {"refresh"},
		"userId":       {"u-1"},
		"accountId":    {"acc-1"},
		"redirect":     {"/hive/kitchen?tab=tasks"},
	}
	h, err := ParseHandoff(q)
	require.NoError(t, err)
	assert.Equal(t, Handoff{
		AccessToken:  "access",
		RefreshToken: "refresh",
		UserID:       "u-1",
		AccountID:    "acc-1",
		Redirect:     "/hive/kitchen?tab=tasks",
	}, h)
}

func TestParseHandoffRequiresToken(t *testing.T) {
	_, err := ParseHandoff(url.Values{"userId": {"u-1"}, "token": {"  "}})
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestParseHandoffDefaultsRedirect(t *testing.T) {
	h, err := ParseHandoff(url.Values{"token": {"t"}})
	require.NoError(t, err)
	assert.Equal(t, "/", h.Redirect)
}

func TestSanitizeRedirect(t *testing.T) {
	tests := map[string]string{
		"":                           "/",
		"/":                          "/",
		"/events":                    "/events",
		"/events?day=mon":            "/events?day=mon",
		"/events?token=abc&day=mon":  "/events?day=mon",
		"//evil.example.com":         "/",
		"https://evil.example.com/x": "/",
		"javascript:alert(1)":        "/",
		"/\\evil.example.com":        "/",
		"events":                     "/",
		"/ok\r\nSet-Cookie: x=y":     "/",
		"/notes?refreshToken=r":      "/notes",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeRedirect(in), "redirect %q", in)
	}
}
