package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/harrylevesque/hivebff/internal/backend"
	"github.com/harrylevesque/hivebff/internal/crypto"
)

var (
	// ErrSessionExpired is returned when a stale session could not be refreshed.
	ErrSessionExpired = errors.New("session expired")
	// ErrNoToken is returned when a session is saved without an access token.
	ErrNoToken = errors.New("access token is required")
)

// RefreshPath is the backend route that exchanges a refresh token.
const RefreshPath = "/auth/refresh"

const (
	keyAccessToken  = "accessToken"
	keyRefreshToken = "refreshToken"
	keyUserID       = "userId"
	keyAccountID    = "accountId"
)

// Session is what the BFF keeps in the session cookie.
type Session struct {
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`
	UserID       string `json:"userId,omitempty"`
	AccountID    string `json:"accountId,omitempty"`
}

// Empty reports whether the session carries no token.
func (s Session) Empty() bool { return s.AccessToken == "" }

// Doer performs backend calls. *backend.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, req backend.Request) (*backend.Response, error)
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	MasterKey    []byte
	CookieName   string
	CookieSecure bool
	MaxAge       time.Duration
	Skew         time.Duration
	ServiceToken string
	Backend      Doer
	Logger       *zap.Logger
}

// Manager owns the session cookie and resolves the bearer for each request.
type Manager struct {
	store        *sessions.CookieStore
	name         string
	skew         time.Duration
	serviceToken string
	backend      Doer
	log          *zap.Logger
	now          func() time.Time
}

// NewManager derives the cookie keys from the master key and builds a Manager.
func NewManager(opts ManagerOptions) (*Manager, error) {
	hashKey, blockKey, err := crypto.CookieKeys(opts.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("derive cookie keys: %w", err)
	}
	if strings.TrimSpace(opts.CookieName) == "" {
		return nil, errors.New("cookie name is required")
	}
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	store := sessions.NewCookieStore(hashKey, blockKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	store.MaxAge(store.Options.MaxAge)

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		store:        store,
		name:         opts.CookieName,
		skew:         opts.Skew,
		serviceToken: opts.ServiceToken,
		backend:      opts.Backend,
		log:          log,
		now:          time.Now,
	}, nil
}

// Load reads the session from the request cookie. A missing or undecodable
// cookie yields an empty session.
func (m *Manager) Load(r *http.Request) Session {
	sess, err := m.store.Get(r, m.name)
	if err != nil {
		m.log.Debug("discarding undecodable session cookie", zap.Error(err))
		return Session{}
	}
	str := func(k string) string {
		v, _ := sess.Values[k].(string)
		return v
	}
	return Session{
		AccessToken:  str(keyAccessToken),
		RefreshToken: str(keyRefreshToken),
		UserID:       str(keyUserID),
		AccountID:    str(keyAccountID),
	}
}

// Save writes s to the session cookie.
func (m *Manager) Save(w http.ResponseWriter, r *http.Request, s Session) error {
	if strings.TrimSpace(s.AccessToken) == "" {
		return ErrNoToken
	}
	sess, _ := m.store.Get(r, m.name)
	sess.Values[keyAccessToken] = s.AccessToken
	sess.Values[keyRefreshToken] = s.RefreshToken
	sess.Values[keyUserID] = s.UserID
	sess.Values[keyAccountID] = s.AccountID
	sess.Options = m.cookieOptions()
	return sess.Save(r, w)
}

// Clear expires the session cookie.
func (m *Manager) Clear(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, m.name)
	sess.Values = map[any]any{}
	opts := m.cookieOptions()
	opts.MaxAge = -1
	sess.Options = opts
	return sess.Save(r, w)
}

func (m *Manager) cookieOptions() *sessions.Options {
	opts := *m.store.Options
	return &opts
}

// ExpiresAt returns the access token expiry of s when it can be read.
func (m *Manager) ExpiresAt(s Session) (time.Time, bool) {
	return TokenExpiry(s.AccessToken)
}

// Resolve picks the bearer for r: the Authorization header first, then the
// session cookie, then the service token. A stale session token is refreshed
// at most once; when that fails the session is cleared and ErrSessionExpired
// is returned.
func (m *Manager) Resolve(w http.ResponseWriter, r *http.Request) (Principal, error) {
	if token := ExtractBearer(r); token != "" {
		return Principal{Bearer: token, Source: SourceHeader}, nil
	}

	s := m.Load(r)
	if !s.Empty() {
		if IsStale(s.AccessToken, m.now(), m.skew) {
			refreshed, err := m.refresh(r.Context(), s)
			if err != nil {
				m.log.Info("session refresh failed",
					zap.String("user_id", s.UserID),
					zap.Error(err))
				if clearErr := m.Clear(w, r); clearErr != nil {
					m.log.Warn("clear session failed", zap.Error(clearErr))
				}
				return Principal{}, ErrSessionExpired
			}
			if err := m.Save(w, r, refreshed); err != nil {
				return Principal{}, fmt.Errorf("save refreshed session: %w", err)
			}
			s = refreshed
		}
		return Principal{Bearer: s.AccessToken, UserID: s.UserID, AccountID: s.AccountID, Source: SourceSession}, nil
	}

	if m.serviceToken != "" {
		return Principal{Bearer: m.serviceToken, Source: SourceService}, nil
	}
	return Principal{}, nil
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

func (m *Manager) refresh(ctx context.Context, s Session) (Session, error) {
	if s.RefreshToken == "" {
		return Session{}, errors.New("no refresh token")
	}
	if m.backend == nil {
		return Session{}, errors.New("no backend configured for refresh")
	}
	resp, err := m.backend.Do(ctx, backend.Request{
		Method: http.MethodPost,
		Path:   RefreshPath,
		Body:   map[string]string{"refreshToken": s.RefreshToken},
	})
	if err != nil {
		return Session{}, err
	}
	var out refreshResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return Session{}, fmt.Errorf("decode refresh response: %w", err)
	}
	access := out.AccessToken
	if access == "" {
		access = out.Token
	}
	if access == "" {
		return Session{}, errors.New("refresh response carried no access token")
	}
	next := s
	next.AccessToken = access
	if out.RefreshToken != "" {
		next.RefreshToken = out.RefreshToken
	}
	return next, nil
}
