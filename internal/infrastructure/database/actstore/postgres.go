package actstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/liverty-music/actcache/pkg/config"
	"github.com/pannpers/go-logging/logging"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// openDB dials Postgres via pgdriver and wraps the resulting *sql.DB in a
// bun.DB bound to the Postgres dialect. Connection setup retries on the
// next call after any connection-class failure: bun/database/sql pool
// handles transparently redial, so the store never needs to hold or reset
// a "broken" handle itself.
func openDB(cfg *config.StoreConfig) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.GetDSN())))
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)

	return bun.NewDB(sqldb, pgdialect.New())
}

const pingTimeout = 5 * time.Second

// ping verifies the database connection is reachable.
func ping(ctx context.Context, db *bun.DB) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping store: %w", err)
	}
	return nil
}

// New creates a Store backed by a freshly opened connection pool, verifying
// connectivity with a ping before returning.
func New(ctx context.Context, cfg *config.StoreConfig, logger *logging.Logger) (*Store, error) {
	db := openDB(cfg)

	if err := ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to establish store connection: %w", err)
	}

	logger.Info(ctx, "store connection established",
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.String("database", cfg.Name),
	)

	return &Store{db: db, logger: logger.With(slog.String("component", "actstore"))}, nil
}
