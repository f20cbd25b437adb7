// Package app wires the application together: configuration, tracing, the
// embedded conversation store, the Genkit runtime, the warehouse adapter,
// and the agent. Both entry points (console and HTTP) build on the same App.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/bqchat/bqchat/internal/agent"
	"github.com/bqchat/bqchat/internal/config"
	"github.com/bqchat/bqchat/internal/database"
	"github.com/bqchat/bqchat/internal/observability"
	"github.com/bqchat/bqchat/internal/store"
	"github.com/bqchat/bqchat/internal/warehouse"
)

// App holds the assembled application components.
type App struct {
	Config    *config.Config
	Genkit    *genkit.Genkit
	Store     *store.Store
	Warehouse *warehouse.Client
	Agent     *agent.Agent
	Logger    *slog.Logger

	db *sql.DB
}

// New assembles the application. The returned cleanup function flushes
// traces and closes the store and warehouse connections; call it exactly
// once, after the entry point is done.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, func(), error) {
	if cfg == nil {
		return nil, nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = slog.Default()
	}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*App, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// Tracing first: Genkit spans only reach the exporter if the span
	// processor is registered before genkit.Init.
	traceShutdown, err := observability.SetupTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		return fail(fmt.Errorf("setting up tracing: %w", err))
	}
	cleanups = append(cleanups, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := traceShutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shut down tracer provider", "error", err)
		}
	})

	db, err := database.Open(cfg.StorePath)
	if err != nil {
		return fail(fmt.Errorf("opening conversation store: %w", err))
	}
	cleanups = append(cleanups, func() {
		if err := db.Close(); err != nil {
			logger.Warn("failed to close conversation store", "error", err)
		}
	})
	if err := database.Migrate(db); err != nil {
		return fail(fmt.Errorf("migrating conversation store: %w", err))
	}

	convStore := store.New(db, logger)

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return fail(fmt.Errorf("initializing genkit"))
	}

	wh, err := warehouse.New(warehouse.Config{
		ProjectID:   cfg.ProjectID,
		DatasetID:   cfg.DatasetID,
		CallTimeout: cfg.QueryTimeout(),
	}, logger)
	if err != nil {
		return fail(fmt.Errorf("opening warehouse: %w", err))
	}
	cleanups = append(cleanups, func() {
		if err := wh.Close(); err != nil {
			logger.Warn("failed to close warehouse", "error", err)
		}
	})

	ag, err := agent.New(agent.Config{
		Genkit:       g,
		Store:        convStore,
		Warehouse:    wh,
		Logger:       logger,
		ModelName:    cfg.ModelName,
		DatasetID:    cfg.DatasetID,
		MaxToolCalls: cfg.MaxToolCalls,
		ModelTimeout: cfg.ModelTimeout(),
	})
	if err != nil {
		return fail(fmt.Errorf("creating agent: %w", err))
	}

	return &App{
		Config:    cfg,
		Genkit:    g,
		Store:     convStore,
		Warehouse: wh,
		Agent:     ag,
		Logger:    logger,
		db:        db,
	}, cleanup, nil
}
