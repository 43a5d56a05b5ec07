// Package di provides dependency injection and application bootstrapping.
package di

import (
	"context"
	"net/http"
	"time"

	"github.com/liverty-music/actcache/internal/infrastructure/server"
	"github.com/liverty-music/actcache/internal/sweeper"
	"github.com/liverty-music/actcache/pkg/shutdown"
	"github.com/pannpers/go-logging/logging"
)

func newApp(
	httpServer *http.Server,
	healthServer *server.HealthServer,
	sweep *sweeper.Sweeper,
	logger *logging.Logger,
	shutdownTimeout time.Duration,
) *App {
	return &App{
		HTTPServer:      httpServer,
		HealthServer:    healthServer,
		Sweeper:         sweep,
		Logger:          logger,
		ShutdownTimeout: shutdownTimeout,
	}
}

// App represents the application with all its dependencies and lifecycle management.
type App struct {
	HTTPServer   *http.Server
	HealthServer *server.HealthServer
	Sweeper      *sweeper.Sweeper

	Logger          *logging.Logger
	ShutdownTimeout time.Duration
}

// Start launches the health probe server, the public HTTP server, and the
// Cache Sweeper, each in its own goroutine. It returns immediately; errCh
// receives the first fatal error from either server.
func (a *App) Start(ctx context.Context) <-chan error {
	errCh := make(chan error, 2)

	go func() {
		if err := a.HealthServer.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	go func() {
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	go a.Sweeper.Run(ctx)

	return errCh
}

// Shutdown runs the package-level phased shutdown sequence (Drain, Flush,
// External, Observe, Datastore) registered during InitializeApp.
func (a *App) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.ShutdownTimeout)
	defer cancel()
	return shutdown.Shutdown(ctx)
}
