package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/bqchat/bqchat/internal/format"
	"github.com/bqchat/bqchat/internal/store"
)

type sessionHandler struct {
	store  *store.Store
	logger *slog.Logger
}

// sessionResponse is the JSON shape of a session.
type sessionResponse struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Group is a recency bucket for list views (Today, Yesterday, ...).
	Group string `json:"group,omitempty"`
}

// messageResponse is the JSON shape of one transcript turn.
type messageResponse struct {
	Role           string           `json:"role"`
	SequenceNumber int              `json:"sequence_number"`
	CreatedAt      time.Time        `json:"created_at"`
	Segments       []format.Segment `json:"segments"`
}

func toSessionResponse(s *store.Session, now time.Time) sessionResponse {
	return sessionResponse{
		ID:        s.ID.String(),
		Topic:     s.Topic,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Group:     format.TimestampLabel(s.UpdatedAt, now),
	}
}

func (h *sessionHandler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.Sessions(r.Context())
	if err != nil {
		h.logger.Error("listing sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "StorageError", "could not list sessions")
		return
	}

	now := time.Now()
	out := make([]sessionResponse, len(sessions))
	for i, s := range sessions {
		out[i] = toSessionResponse(s, now)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (h *sessionHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic string `json:"topic"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Error", "invalid request body")
		return
	}

	session, err := h.store.CreateSession(r.Context(), req.Topic)
	if err != nil {
		h.logger.Error("creating session", "error", err)
		writeError(w, http.StatusInternalServerError, "StorageError", "could not create session")
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(session, time.Now()))
}

func (h *sessionHandler) getSession(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	session, err := h.store.Session(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NotFoundError", "session not found")
			return
		}
		h.logger.Error("getting session", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "StorageError", "could not load session")
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session, time.Now()))
}

func (h *sessionHandler) getSessionMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	messages, err := h.store.Messages(r.Context(), id)
	if err != nil {
		h.logger.Error("getting messages", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "StorageError", "could not load messages")
		return
	}

	// Tool turns are agent-internal; the transcript shows the dialogue.
	out := make([]messageResponse, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == store.RoleTool {
			continue
		}
		var segments []format.Segment
		if msg.Role == store.RoleAssistant {
			segments = format.Message(msg.Text())
		} else {
			segments = []format.Segment{{Kind: format.KindText, Text: msg.Text()}}
		}
		out = append(out, messageResponse{
			Role:           msg.Role,
			SequenceNumber: msg.SequenceNumber,
			CreatedAt:      msg.CreatedAt,
			Segments:       segments,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

func (h *sessionHandler) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteSession(r.Context(), id); err != nil {
		h.logger.Error("deleting session", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "StorageError", "could not delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseSessionID extracts and validates the {id} path value. Writes the error
// response itself so handlers can return early.
func parseSessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error", "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}
