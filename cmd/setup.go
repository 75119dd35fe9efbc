package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/repeatnomore/docstore/db"
	"github.com/repeatnomore/docstore/internal/config"
	"github.com/repeatnomore/docstore/internal/database"
	"github.com/repeatnomore/docstore/internal/log"
	"github.com/repeatnomore/docstore/internal/observability"
	"github.com/repeatnomore/docstore/internal/vectorstore"
)

// app bundles the resources every command needs: loaded config, a
// logger, the connection pool, and an initialized record store.
type app struct {
	cfg    *config.Config
	logger log.Logger
	pool   *pgxpool.Pool
	store  *vectorstore.Store

	tracingShutdown func(context.Context) error
}

// newApp loads configuration, connects to PostgreSQL, runs migrations,
// and initializes the record store. Call close when done.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})

	a := &app{cfg: cfg, logger: logger}

	if cfg.Tracing.Enabled {
		shutdown, err := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.Tracing.Endpoint,
			Environment: cfg.Tracing.Environment,
			ServiceName: cfg.Tracing.ServiceName,
		})
		if err != nil {
			return nil, fmt.Errorf("setup tracing: %w", err)
		}
		a.tracingShutdown = shutdown
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool

	store, err := vectorstore.New(pool, vectorstore.Config{
		Dimension: cfg.EmbeddingDimension,
		Lists:     cfg.IndexLists,
		Probes:    cfg.IndexProbes,
	}, logger.With("component", "vectorstore"))
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize store: %w", err)
	}
	a.store = store

	return a, nil
}

func (a *app) close(ctx context.Context) {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracingShutdown != nil {
		if err := a.tracingShutdown(ctx); err != nil {
			a.logger.Warn("tracing shutdown failed", "error", err)
		}
	}
}
