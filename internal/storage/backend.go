// Package storage selects and opens the persistence backend named by the
// configuration.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimillas/autobook/internal/app"
	"github.com/cimillas/autobook/internal/config"
	"github.com/cimillas/autobook/internal/idempotency"
	"github.com/cimillas/autobook/internal/ledger"
	"github.com/cimillas/autobook/internal/storage/memory"
	"github.com/cimillas/autobook/internal/storage/postgres"
	"github.com/cimillas/autobook/internal/storage/sqlite"
	"github.com/cimillas/autobook/migrations"
)

const startupTimeout = 5 * time.Second

// Store is everything the services persist through.
type Store interface {
	app.BookingRepository
	app.AccountRepository
	idempotency.Store
	ledger.Store
}

type Backend struct {
	Store
	Driver string
	// Migrated lists the Postgres migrations applied by Open.
	Migrated []string

	ping  func(context.Context) error
	close func()
}

// Ping reports whether the backend is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	if b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// Open connects to the configured backend. Postgres schemas are migrated
// and SQLite schemas created before Open returns.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return &Backend{Store: memory.NewStore(), Driver: cfg.StoreDriver}, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info("sqlite store opened", slog.String("path", cfg.SQLitePath))
		return &Backend{
			Store:  store,
			Driver: cfg.StoreDriver,
			close:  func() { _ = store.Close() },
		}, nil

	case config.DriverPostgres:
		startupCtx, cancel := context.WithTimeout(ctx, startupTimeout)
		defer cancel()

		pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to db: %w", err)
		}
		if err := pool.Ping(startupCtx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("db ping: %w", err)
		}
		applied, err := migrations.Apply(startupCtx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		for _, name := range applied {
			logger.Info("migration applied", slog.String("name", name))
		}
		return &Backend{
			Store:    postgres.NewStore(pool),
			Driver:   cfg.StoreDriver,
			Migrated: applied,
			ping:     pool.Ping,
			close:    pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
