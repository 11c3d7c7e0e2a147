package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Manager ties the cookie codec to a session store
type Manager struct {
	store  Store
	codec  *CookieCodec
	ttl    time.Duration
	secure bool
}

// NewManager creates a manager. secure selects SameSite=None with the
// Secure flag for cross-site deployments, otherwise SameSite=Lax.
func NewManager(store Store, secret string, ttl time.Duration, secure bool) *Manager {
	return &Manager{
		store:  store,
		codec:  NewCookieCodec(secret, ttl),
		ttl:    ttl,
		secure: secure,
	}
}

// Load returns the session named by the request cookie or a fresh one
func (m *Manager) Load(r *http.Request) *Session {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return New()
	}

	sid, err := m.codec.Decode(cookie.Value)
	if err != nil {
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("Ignoring invalid session cookie")
		return New()
	}

	s, err := m.store.Get(r.Context(), sid)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Warn().Err(err).Msg("Failed to load session")
		}
		return New()
	}
	return s
}

// Commit saves the session and (re)issues the cookie
func (m *Manager) Commit(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if err := m.store.Save(ctx, s, m.ttl); err != nil {
		return err
	}
	token, err := m.codec.Encode(s.ID)
	if err != nil {
		return err
	}
	http.SetCookie(w, m.cookie(token, int(m.ttl/time.Second)))
	return nil
}

// Renew moves the state of s to a fresh id, deletes the old record and issues
// the new cookie. Call it whenever the session gains privileges.
func (m *Manager) Renew(ctx context.Context, w http.ResponseWriter, s *Session) (*Session, error) {
	fresh := New()
	fresh.Admin = s.Admin
	fresh.UserID = s.UserID

	if err := m.store.Delete(ctx, s.ID); err != nil && !errors.Is(err, ErrNotFound) {
		log.Warn().Err(err).Msg("Failed to delete replaced session")
	}
	if err := m.Commit(ctx, w, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// Destroy removes the session and expires the cookie
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {
	http.SetCookie(w, m.cookie("", -1))
	return m.store.Delete(ctx, s.ID)
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if m.secure {
		c.SameSite = http.SameSiteNoneMode
		c.Secure = true
	}
	return c
}

type contextKey string

const sessionKey contextKey = "session"

// WithSession stores s in ctx for handlers further down the chain
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// FromContext returns the session stored by WithSession
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok
}
