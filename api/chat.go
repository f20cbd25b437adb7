package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/bqchat/bqchat/internal/agent"
	"github.com/bqchat/bqchat/internal/format"
	"github.com/bqchat/bqchat/internal/store"
)

const maxMessageBytes = 64 * 1024

type chatHandler struct {
	agent  *agent.Agent
	store  *store.Store
	logger *slog.Logger
}

type chatRequest struct {
	// SessionID continues an existing conversation. Empty starts a new one.
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string           `json:"session_id"`
	Topic     string           `json:"topic,omitempty"`
	Segments  []format.Segment `json:"segments"`
	ToolCalls int              `json:"tool_calls"`
}

// send runs one user turn. New sessions get a generated topic after the
// first exchange.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Error", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Error", "message is required")
		return
	}

	sessionID := uuid.New()
	newSession := true
	if req.SessionID != "" {
		id, err := uuid.Parse(req.SessionID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Error", "invalid session id")
			return
		}
		sessionID = id
		newSession = false
	}

	resp, err := h.agent.Execute(r.Context(), sessionID, req.Message)
	if err != nil {
		h.writeAgentError(w, sessionID, err)
		return
	}

	topic := ""
	if newSession {
		topic = h.agent.GenerateTitle(r.Context(), req.Message)
		if err := h.store.SetTopic(r.Context(), sessionID, topic); err != nil {
			h.logger.Warn("setting session topic", "session_id", sessionID, "error", err)
			topic = ""
		}
	}

	writeJSON(w, http.StatusOK, chatResponse{
		SessionID: sessionID.String(),
		Topic:     topic,
		Segments:  format.Message(resp.FinalText),
		ToolCalls: resp.ToolCalls,
	})
}

// writeAgentError maps a failed turn onto an HTTP response. Dispatcher
// faults and unclassified failures show a generic message; the fault itself
// goes to the log.
func (h *chatHandler) writeAgentError(w http.ResponseWriter, sessionID uuid.UUID, err error) {
	h.logger.Error("chat turn failed", "session_id", sessionID, "error", err)

	switch {
	case errors.Is(err, agent.ErrLoopLimit):
		writeError(w, http.StatusUnprocessableEntity, "LoopLimitExceeded",
			"the assistant could not answer within its tool budget")
	case errors.Is(err, agent.ErrUnknownTool):
		writeError(w, http.StatusBadGateway, "UnknownToolError",
			"the assistant requested an unsupported operation")
	default:
		label := format.Label(err)
		if label == "Error" {
			writeError(w, http.StatusInternalServerError, "Error", "something went wrong, please try again")
			return
		}
		writeError(w, http.StatusBadGateway, label, "the warehouse request failed")
	}
}

// decodeBody decodes a JSON request body with a size cap, rejecting unknown
// fields. An empty body decodes as the zero value.
func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxMessageBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}
