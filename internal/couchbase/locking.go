package couchbase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"
)

const lockDocID = "db_lock"

// ErrLocked is returned when another instance holds the lock
var ErrLocked = errors.New("database is locked by another instance")

// DatabaseLocker serialises schema work across API instances with a
// lock document that expires on its own.
type DatabaseLocker struct {
	col    *gocb.Collection
	owner  string
	ttl    time.Duration
	mu     sync.Mutex
	locked bool
}

type lockDocument struct {
	Locked   bool      `json:"locked"`
	LockedAt time.Time `json:"lockedAt"`
	LockedBy string    `json:"lockedBy"`
}

// NewDatabaseLocker creates a new database locker
func NewDatabaseLocker(bucket *gocb.Bucket) *DatabaseLocker {
	host, _ := os.Hostname()
	return &DatabaseLocker{
		col:   bucket.DefaultCollection(),
		owner: fmt.Sprintf("portfolio-api@%s/%d", host, os.Getpid()),
		ttl:   5 * time.Minute,
	}
}

// Lock takes the lock or returns ErrLocked
func (l *DatabaseLocker) Lock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locked {
		return fmt.Errorf("database is already locked")
	}

	doc := lockDocument{
		Locked:   true,
		LockedAt: time.Now().UTC(),
		LockedBy: l.owner,
	}

	_, err := l.col.Insert(lockDocID, doc, &gocb.InsertOptions{Context: ctx, Expiry: l.ttl})
	if errors.Is(err, gocb.ErrDocumentExists) {
		return ErrLocked
	}
	if err != nil {
		return fmt.Errorf("failed to create lock document: %w", err)
	}

	l.locked = true
	log.Info().Str("owner", l.owner).Msg("Database locked successfully")
	return nil
}

// Unlock releases the lock
func (l *DatabaseLocker) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.locked {
		return fmt.Errorf("database is not locked")
	}

	_, err := l.col.Remove(lockDocID, &gocb.RemoveOptions{Context: ctx})
	if err != nil && !errors.Is(err, gocb.ErrDocumentNotFound) {
		return fmt.Errorf("failed to remove lock document: %w", err)
	}

	l.locked = false
	log.Info().Msg("Database unlocked successfully")
	return nil
}

// IsLocked returns true if this instance holds the lock
func (l *DatabaseLocker) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

// WithLock runs fn while holding the lock, polling until ctx ends if
// another instance has it.
func (l *DatabaseLocker) WithLock(ctx context.Context, fn func(context.Context) error) error {
	for {
		err := l.Lock(ctx)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrLocked) {
			return err
		}
		log.Info().Msg("Waiting for database lock held by another instance")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	defer func() {
		if err := l.Unlock(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("Failed to release database lock")
		}
	}()
	return fn(ctx)
}
