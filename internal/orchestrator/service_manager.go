package orchestrator

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultShutdownTimeout bounds the graceful HTTP shutdown
const DefaultShutdownTimeout = 30 * time.Second

// BackgroundTask runs until its context is cancelled
type BackgroundTask struct {
	Name string
	Run  func(ctx context.Context)
}

// ServiceManager manages the lifecycle of the HTTP server and its background tasks
type ServiceManager struct {
	server          *http.Server
	shutdownTimeout time.Duration
	tasks           []BackgroundTask
}

// NewServiceManager creates a new service manager
func NewServiceManager(server *http.Server, shutdownTimeout time.Duration) *ServiceManager {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &ServiceManager{server: server, shutdownTimeout: shutdownTimeout}
}

// AddTask registers a task that starts with the server and stops with it
func (sm *ServiceManager) AddTask(name string, run func(ctx context.Context)) {
	sm.tasks = append(sm.tasks, BackgroundTask{Name: name, Run: run})
}

// Run serves on the server's address until ctx is cancelled or the server fails
func (sm *ServiceManager) Run(ctx context.Context) error {
	return sm.run(ctx, sm.server.ListenAndServe)
}

// Serve is Run on an existing listener
func (sm *ServiceManager) Serve(ctx context.Context, ln net.Listener) error {
	return sm.run(ctx, func() error { return sm.server.Serve(ln) })
}

func (sm *ServiceManager) run(ctx context.Context, serve func() error) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", sm.server.Addr).Msg("API Server starting")
		if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down services...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), sm.shutdownTimeout)
		defer cancel()
		if err := sm.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server did not shut down cleanly")
			return err
		}
		log.Info().Msg("API server stopped")
		return nil
	})

	for _, task := range sm.tasks {
		g.Go(func() error {
			log.Debug().Str("task", task.Name).Msg("Background task started")
			task.Run(gctx)
			log.Debug().Str("task", task.Name).Msg("Background task stopped")
			return nil
		})
	}

	return g.Wait()
}
