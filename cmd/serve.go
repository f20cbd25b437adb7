package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bqchat/bqchat/api"
	"github.com/bqchat/bqchat/internal/app"
	"github.com/bqchat/bqchat/internal/config"
)

// runServe starts the JSON HTTP API server.
// An optional positional argument overrides the listen address.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	addr := cfg.ServeAddr
	if len(os.Args) > 2 {
		addr = os.Args[2]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, cleanup, err := app.New(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer cleanup()

	server, err := api.NewServer(api.ServerConfig{
		Logger: a.Logger,
		Agent:  a.Agent,
		Store:  a.Store,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := server.Run(ctx, addr); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
