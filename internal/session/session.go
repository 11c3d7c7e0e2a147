// Package session keeps the admin and user login state behind a signed cookie.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"shaneshark.com/portfolio/internal/store"
)

// ErrNotFound is returned for unknown or expired sessions
var ErrNotFound = errors.New("session not found")

// Session is the server-side state bound to one browser
type Session struct {
	ID        string    `json:"id"`
	Admin     bool      `json:"admin"`
	UserID    store.ID  `json:"userId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// New returns an empty session with a fresh random id
func New() *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
}

// Store persists sessions by id
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}
