// Package api exposes the conversational warehouse assistant over HTTP.
//
// All endpoints speak JSON. Assistant replies are returned as renderable
// segments (text, code, table, error) so clients never parse markdown
// themselves. Errors carry a failure-class label; internal detail stays in
// the server log.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/bqchat/bqchat/internal/agent"
	"github.com/bqchat/bqchat/internal/store"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// ServerConfig contains configuration for the API server.
type ServerConfig struct {
	Logger *slog.Logger
	Agent  *agent.Agent // Required
	Store  *store.Store // Required
}

// Server is the JSON API HTTP server.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
}

// NewServer creates an API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Agent == nil {
		return nil, errors.New("agent is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sh := &sessionHandler{store: cfg.Store, logger: logger}
	ch := &chatHandler{agent: cfg.Agent, store: cfg.Store, logger: logger}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/sessions", sh.listSessions)
	mux.HandleFunc("POST /api/v1/sessions", sh.createSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", sh.getSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}/messages", sh.getSessionMessages)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sh.deleteSession)

	mux.HandleFunc("POST /api/v1/chat", ch.send)

	var handler http.Handler = mux
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Store))
	topMux.Handle("/", handler)

	return &Server{mux: topMux, logger: logger}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is canceled, then drains connections gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
