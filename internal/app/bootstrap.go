// Package app builds the shared pieces both binaries start from.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"shaneshark.com/portfolio/internal/auth"
	"shaneshark.com/portfolio/internal/config"
	"shaneshark.com/portfolio/internal/couchbase"
	"shaneshark.com/portfolio/internal/session"
	"shaneshark.com/portfolio/internal/store"
	"shaneshark.com/portfolio/internal/store/sqlite"
	"shaneshark.com/portfolio/pkg/zerolog_config"
)

// LoadConfig loads .env files, then the YAML config and environment overrides
func LoadConfig(path string) (*config.Config, error) {
	config.LoadDotEnv()
	return config.Load(path)
}

// StartLogging configures the global logger for app
func StartLogging(cfg *config.Config, app string) error {
	if app == "" {
		app = cfg.Log.App
	}
	zerolog_config.SetAppPrefix(app)
	return zerolog_config.StartupWithEnv(cfg.Log.ElasticsearchURL, cfg.Log.Index, cfg.Log.Level)
}

// OpenStore opens the configured store driver, creating its schema or indexes
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	ids, err := store.NewIDGenerator(cfg.Store.NodeID)
	if err != nil {
		return nil, err
	}

	switch cfg.Store.Driver {
	case config.StoreSQLite:
		st, err := sqlite.Open(cfg.Store.SQLitePath, ids)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.Store.SQLitePath).Msg("SQLite store opened")
		return st, nil
	case config.StoreCouchbase:
		cb := cfg.Store.Couchbase
		client, err := couchbase.NewClient(ctx, cb.URL, cb.Username, cb.Password, cb.Bucket, ids)
		if err != nil {
			return nil, err
		}
		log.Info().Str("bucket", cb.Bucket).Msg("Couchbase store opened")
		return client, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// SessionStore is a session.Store that owns resources
type SessionStore interface {
	session.Store
	Close() error
}

type memorySessions struct{ *session.MemoryStore }

func (memorySessions) Close() error { return nil }

// OpenSessions returns the configured session store
func OpenSessions(ctx context.Context, cfg *config.Config) (SessionStore, error) {
	switch cfg.Session.Driver {
	case config.SessionMemory:
		return memorySessions{session.NewMemoryStore()}, nil
	case config.SessionRedis:
		rs := session.NewRedisStore(cfg.Session.RedisAddr)
		if err := rs.Ping(ctx); err != nil {
			rs.Close()
			return nil, fmt.Errorf("redis session store: %w", err)
		}
		log.Info().Str("addr", cfg.Session.RedisAddr).Msg("Redis session store connected")
		return rs, nil
	default:
		return nil, fmt.Errorf("unknown session driver %q", cfg.Session.Driver)
	}
}

// Mailer returns an SMTP mailer when a host is configured, otherwise one that only logs
func Mailer(cfg *config.Config) auth.Mailer {
	m := cfg.Mail
	if m.SMTPHost == "" {
		log.Warn().Msg("SMTP not configured, verification codes are logged instead of mailed")
		return auth.LogMailer{}
	}
	return &auth.SMTPMailer{
		Host:     m.SMTPHost,
		Port:     m.SMTPPort,
		Username: m.Username,
		Password: m.Password,
		From:     m.From,
	}
}
