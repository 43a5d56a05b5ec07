package di

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/liverty-music/actcache/internal/enrich"
	"github.com/liverty-music/actcache/internal/infrastructure/database/actstore"
	"github.com/liverty-music/actcache/internal/infrastructure/music/bandsintown"
	"github.com/liverty-music/actcache/internal/infrastructure/music/musicbrainz"
	"github.com/liverty-music/actcache/internal/infrastructure/server"
	"github.com/liverty-music/actcache/internal/queue"
	"github.com/liverty-music/actcache/internal/sweeper"
	"github.com/liverty-music/actcache/internal/usecase"
	"github.com/liverty-music/actcache/pkg/config"
	"github.com/liverty-music/actcache/pkg/shutdown"
	"github.com/pannpers/go-logging/logging"
)

// InitializeApp creates a new App with all dependencies wired up manually.
func InitializeApp(ctx context.Context) (*App, error) {
	cfg, err := config.Load("APP")
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := provideLogger(cfg)
	if err != nil {
		return nil, err
	}

	if len(cfg.Server.AllowedOrigins) == 0 {
		logger.Warn(ctx, "CORS not configured, browser requests will fail")
	}

	store, err := actstore.New(ctx, &cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate actstore: %w", err)
	}

	upstreamClient := &http.Client{Timeout: cfg.Domain.UpstreamTimeout}
	musicbrainzClient := musicbrainz.NewClient(upstreamClient, logger)
	bandsintownClient := bandsintown.NewCachedClient(bandsintown.NewClient(upstreamClient, logger), cfg.Domain.BandsintownCacheTTL)

	enricher := enrich.New(musicbrainzClient, bandsintownClient, logger)

	shutdown.Init(logger)

	fetchQueue := queue.New(enricher, store, cfg.Domain.QueueInterval, logger)

	actService := usecase.New(
		store,
		enricher,
		fetchQueue,
		cfg.Domain.RequestDeadline,
		cfg.Domain.StalenessThreshold,
		logger,
	)

	sweep := sweeper.New(store, enricher, cfg.Domain.SweepCycle, cfg.Domain.SweepRetry, cfg.Domain.EvictionThreshold, logger)

	adminAuth := server.StaticSecretAuthenticator{Secret: cfg.Domain.AdminSecret}
	router := server.NewRouter(actService, store, adminAuth, logger)
	corsHandler := server.NewCORSHandler(router, &cfg.Server)

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           corsHandler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	healthServer := server.NewHealthServer(net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.HealthPort)))

	// Register shutdown phases.
	// Drain: health -> 503, then the HTTP server stops accepting and drains
	// in-flight requests, and the Fetch Queue's Close stops its pacing worker
	// (pending ids are dropped). The Sweeper has no cancellation hook of its
	// own; its current pass is simply abandoned on exit, consistent with
	// spec's Non-goal excluding durable queue persistence.
	shutdown.AddDrainPhase(healthServer, newHTTPServerCloser(httpServer), fetchQueue)
	shutdown.AddExternalPhase(musicbrainzClient, bandsintownClient)
	shutdown.AddDatastorePhase(store)

	return newApp(httpServer, healthServer, sweep, logger, cfg.ShutdownTimeout), nil
}

func provideLogger(cfg *config.Config) (*logging.Logger, error) {
	var opts []logging.Option
	switch cfg.Logging.Level {
	case "debug":
		opts = append(opts, logging.WithLevel(slog.LevelDebug))
	case "info":
		opts = append(opts, logging.WithLevel(slog.LevelInfo))
	case "warn":
		opts = append(opts, logging.WithLevel(slog.LevelWarn))
	case "error":
		opts = append(opts, logging.WithLevel(slog.LevelError))
	}
	switch cfg.Logging.Format {
	case "text":
		opts = append(opts, logging.WithFormat(logging.FormatText))
	case "json":
		opts = append(opts, logging.WithFormat(logging.FormatJSON))
	}
	return logging.New(opts...)
}

const httpServerCloseTimeout = 10 * time.Second

// httpServerCloser adapts *http.Server to io.Closer for shutdown.AddDrainPhase.
type httpServerCloser struct {
	srv *http.Server
}

func newHTTPServerCloser(srv *http.Server) *httpServerCloser {
	return &httpServerCloser{srv: srv}
}

func (c *httpServerCloser) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), httpServerCloseTimeout)
	defer cancel()
	return c.srv.Shutdown(ctx)
}
