// Package store defines the persistence contract for QA entries, users and
// verification codes. Drivers live in store/sqlite and internal/couchbase.
package store

import (
	"context"
	"time"
)

// QaStore persists knowledge-base entries
type QaStore interface {
	ListQa(ctx context.Context, q QaQuery) (Page[QaInfo], error)
	ListHotQa(ctx context.Context) ([]QaInfo, error)
	GetQa(ctx context.Context, id ID) (*QaInfo, error)
	// IncrementQaViews bumps the view counter in place
	IncrementQaViews(ctx context.Context, id ID) error
	CreateQa(ctx context.Context, qa *QaInfo) error
	UpdateQa(ctx context.Context, qa *QaInfo) error
	DeleteQa(ctx context.Context, id ID) error
}

// UserStore persists accounts
type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	UpdateUserRole(ctx context.Context, email, role string) error
}

// CodeStore persists verification codes
type CodeStore interface {
	SaveVerificationCode(ctx context.Context, c *VerificationCode) error
	// ConsumeVerificationCode marks the newest unused, unexpired match as used.
	// It returns ErrNotFound when there is no such code.
	ConsumeVerificationCode(ctx context.Context, account, code string, now time.Time) error
}

// Store is the full persistence surface used by the API server
type Store interface {
	QaStore
	UserStore
	CodeStore
	Ping(ctx context.Context) error
	Close() error
}
