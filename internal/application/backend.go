// Package application wires configuration to a concrete entity store and
// row sink. The HTTP server and the operator CLI both start from here.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonMunkholm/simplestruct/internal/config"
	"github.com/JonMunkholm/simplestruct/internal/core"
	"github.com/JonMunkholm/simplestruct/internal/entity"
	"github.com/JonMunkholm/simplestruct/internal/postgres"
	"github.com/JonMunkholm/simplestruct/internal/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Backend is an opened entity store with its destination sink.
type Backend struct {
	Driver string
	Store  entity.Store
	Writer entity.Writer
	Sink   core.Sink

	closers []func()
}

// Close releases connections held by the backend.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// Open connects the backend selected by cfg.Store.Driver. When a fixtures
// path is configured for a database driver, the fixtures are saved into it
// before Open returns.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	var (
		b   *Backend
		err error
	)
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		b, err = openPostgres(ctx, cfg.Database)
	case config.DriverSQLite:
		b, err = openSQLite(ctx, cfg.Store.SQLitePath)
	case config.DriverMemory:
		return openMemory(cfg.Store.FixturesPath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Store.FixturesPath != "" {
		n, err := Seed(ctx, b.Writer, cfg.Store.FixturesPath)
		if err != nil {
			b.Close()
			return nil, err
		}
		slog.Info("fixtures seeded", "driver", b.Driver, "entities", n, "path", cfg.Store.FixturesPath)
	}
	return b, nil
}

func openPostgres(ctx context.Context, dc config.DatabaseConfig) (*Backend, error) {
	poolConfig, err := pgxpool.ParseConfig(dc.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(dc.MaxConns)
	poolConfig.MinConns = int32(dc.MinConns)
	poolConfig.MaxConnLifetime = dc.MaxConnLifetime
	poolConfig.MaxConnIdleTime = dc.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	if u, err := url.Parse(dc.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	store := postgres.NewStore(pool)
	return &Backend{
		Driver:  config.DriverPostgres,
		Store:   store,
		Writer:  store,
		Sink:    postgres.NewSink(pool),
		closers: []func(){pool.Close},
	}, nil
}

func openSQLite(ctx context.Context, path string) (*Backend, error) {
	db, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	slog.Info("opened sqlite database", "path", path)

	store := sqlite.NewStore(db)
	return &Backend{
		Driver:  config.DriverSQLite,
		Store:   store,
		Writer:  store,
		Sink:    sqlite.NewSink(db),
		closers: []func(){func() { _ = db.Close() }},
	}, nil
}

func openMemory(fixtures string) (*Backend, error) {
	entities, err := entity.LoadFixtures(fixtures)
	if err != nil {
		return nil, fmt.Errorf("load fixtures: %w", err)
	}
	slog.Info("loaded fixtures", "entities", len(entities), "path", fixtures)

	store := entity.NewMemoryStore(entities...)
	return &Backend{
		Driver: config.DriverMemory,
		Store:  store,
		Writer: store,
		Sink:   core.NewMemorySink(),
	}, nil
}

// Seed loads the fixtures at path and saves them through w. Returns the
// number of entities saved.
func Seed(ctx context.Context, w entity.Writer, path string) (int, error) {
	entities, err := entity.LoadFixtures(path)
	if err != nil {
		return 0, fmt.Errorf("load fixtures: %w", err)
	}
	if err := w.Save(ctx, entities...); err != nil {
		return 0, fmt.Errorf("save fixtures: %w", err)
	}
	return len(entities), nil
}

// NewService builds the report service over b and creates any missing
// report tables.
func NewService(ctx context.Context, cfg *config.Config, b *Backend, opts ...core.Option) (*core.Service, error) {
	svc, err := core.NewService(b.Store, b.Sink, cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := svc.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}
