package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/bqchat/bqchat/internal/config"
	"github.com/bqchat/bqchat/internal/database"
	"github.com/bqchat/bqchat/internal/store"
)

// runSessions lists or deletes saved conversations. Works directly against
// the store; no model or warehouse connection is needed.
func runSessions(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := database.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("opening conversation store: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Warn("failed to close store", "error", err)
		}
	}()
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrating conversation store: %w", err)
	}

	s := store.New(db, slog.Default())

	if len(args) == 0 {
		sessions, err := s.Sessions(ctx)
		if err != nil {
			return err
		}
		newConsole(os.Stdout).sessions(sessions)
		return nil
	}

	switch args[0] {
	case "delete":
		if len(args) < 2 {
			return errors.New("usage: bqchat sessions delete <topic|id>")
		}
		return deleteSession(ctx, s, args[1])
	default:
		return fmt.Errorf("unknown sessions subcommand: %s", args[0])
	}
}

// deleteSession removes a conversation addressed by topic or by id.
func deleteSession(ctx context.Context, s *store.Store, ref string) error {
	id, err := uuid.Parse(ref)
	if err != nil {
		sess, err := s.SessionByTopic(ctx, ref)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no conversation with topic %q", ref)
			}
			return err
		}
		id = sess.ID
	}

	if err := s.DeleteSession(ctx, id); err != nil {
		return err
	}

	// Drop the state file if it pointed at the deleted session.
	if current, err := store.LoadCurrentSessionID(); err == nil && current != nil && *current == id {
		if err := store.ClearCurrentSessionID(); err != nil {
			slog.Warn("failed to clear session state", "error", err)
		}
	}

	fmt.Printf("deleted conversation %s\n", id)
	return nil
}
