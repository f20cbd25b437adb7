package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/bqchat/bqchat/internal/app"
	"github.com/bqchat/bqchat/internal/config"
	"github.com/bqchat/bqchat/internal/store"
)

// runChat starts the interactive console conversation.
func runChat() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, cleanup, err := app.New(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer cleanup()

	sessionID, fresh, err := getOrCreateSession(ctx, a.Store)
	if err != nil {
		return fmt.Errorf("failed to resolve session: %w", err)
	}

	console := newConsole(os.Stdout)
	console.banner(cfg.ProjectID, cfg.DatasetID)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)

	for {
		console.prompt()
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			done, err := handleChatCommand(ctx, console, a.Store, input, &sessionID, &fresh)
			if err != nil {
				console.errorLine(err.Error())
			}
			if done {
				return nil
			}
			continue
		}

		resp, err := a.Agent.Execute(ctx, sessionID, input)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("turn failed", "session_id", sessionID, "error", err)
			console.errorLine("something went wrong, please try again")
			continue
		}

		console.reply(resp.FinalText)

		if fresh {
			fresh = false
			if topic := a.Agent.GenerateTitle(ctx, input); topic != "" {
				if err := a.Store.SetTopic(ctx, sessionID, topic); err != nil {
					slog.Warn("failed to set session topic", "error", err)
				}
			}
		}
	}
}

// getOrCreateSession resolves the active session: the one recorded in the
// local state file if it still exists, otherwise a new one. The second
// return reports whether the session has no turns yet.
func getOrCreateSession(ctx context.Context, s *store.Store) (uuid.UUID, bool, error) {
	currentID, err := store.LoadCurrentSessionID()
	if err != nil {
		return uuid.Nil, false, err
	}

	if currentID != nil {
		if _, err := s.Session(ctx, *currentID); err == nil {
			msgs, err := s.Messages(ctx, *currentID)
			if err != nil {
				return uuid.Nil, false, err
			}
			return *currentID, len(msgs) == 0, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return uuid.Nil, false, err
		}
	}

	return newSession(ctx, s)
}

// newSession creates a session and records it as current.
func newSession(ctx context.Context, s *store.Store) (uuid.UUID, bool, error) {
	sess, err := s.CreateSession(ctx, "")
	if err != nil {
		return uuid.Nil, false, err
	}
	if err := store.SaveCurrentSessionID(sess.ID); err != nil {
		slog.Warn("failed to save session state", "error", err)
	}
	return sess.ID, true, nil
}

// handleChatCommand executes a slash command. Returns true when the REPL
// should exit.
func handleChatCommand(ctx context.Context, console *console, s *store.Store, input string, sessionID *uuid.UUID, fresh *bool) (bool, error) {
	switch input {
	case "/exit", "/quit":
		return true, nil
	case "/help":
		console.help()
		return false, nil
	case "/new":
		id, isFresh, err := newSession(ctx, s)
		if err != nil {
			return false, err
		}
		*sessionID = id
		*fresh = isFresh
		console.infoLine("started a new conversation")
		return false, nil
	case "/sessions":
		sessions, err := s.Sessions(ctx)
		if err != nil {
			return false, err
		}
		console.sessions(sessions)
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %q, try /help", input)
	}
}
