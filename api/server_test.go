package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/bqchat/bqchat/internal/agent"
	"github.com/bqchat/bqchat/internal/database"
	"github.com/bqchat/bqchat/internal/log"
	"github.com/bqchat/bqchat/internal/store"
	"github.com/bqchat/bqchat/internal/warehouse"
)

type stubWarehouse struct{}

func (stubWarehouse) TableSchema(context.Context, string) (*warehouse.Schema, error) {
	return nil, fmt.Errorf("schema: %w", warehouse.ErrRemote)
}

func (stubWarehouse) Query(context.Context, string) (*warehouse.ResultSet, error) {
	return nil, fmt.Errorf("query: %w", warehouse.ErrRemote)
}

// newTestServer builds a server over a throwaway store. The agent is real
// but its model is never exercised by these tests.
func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating database: %v", err)
	}
	convStore := store.New(db, log.NewNop())

	ag, err := agent.New(agent.Config{
		Genkit:    genkit.Init(context.Background()),
		Store:     convStore,
		Warehouse: stubWarehouse{},
		Logger:    log.NewNop(),
		ModelName: "test-model",
	})
	if err != nil {
		t.Fatalf("creating agent: %v", err)
	}

	srv, err := NewServer(ServerConfig{
		Logger: log.NewNop(),
		Agent:  ag,
		Store:  convStore,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv, convStore
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req := httptest.NewRequest(method, path, reqBody)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status %d, want 200", rec.Code)
	}
}

func TestReady(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/ready", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status %d, want 200", rec.Code)
	}
}

func TestCreateAndGetSession(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/sessions",
		map[string]string{"topic": "orders analysis"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeResponse[sessionResponse](t, rec)
	if created.Topic != "orders analysis" {
		t.Errorf("topic %q", created.Topic)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/sessions/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeResponse[sessionResponse](t, rec)
	if got.ID != created.ID {
		t.Errorf("id %q, want %q", got.ID, created.ID)
	}
	if got.Group != "Today" {
		t.Errorf("group %q, want Today", got.Group)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sessions/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
	resp := decodeResponse[errorResponse](t, rec)
	if resp.Label != "NotFoundError" {
		t.Errorf("label %q, want NotFoundError", resp.Label)
	}
}

func TestGetSessionInvalidID(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sessions/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rec.Code)
	}
}

func TestListSessions(t *testing.T) {
	srv, convStore := newTestServer(t)

	for _, topic := range []string{"first", "second"} {
		if _, err := convStore.CreateSession(context.Background(), topic); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse[struct {
		Sessions []sessionResponse `json:"sessions"`
	}](t, rec)
	if len(resp.Sessions) != 2 {
		t.Errorf("got %d sessions, want 2", len(resp.Sessions))
	}
}

func TestSessionMessagesHideToolTurns(t *testing.T) {
	srv, convStore := newTestServer(t)

	sessionID := uuid.New()
	err := convStore.AppendMessages(context.Background(), sessionID, []*store.Message{
		{Role: store.RoleUser, Content: []*ai.Part{ai.NewTextPart("describe orders")}},
		{Role: store.RoleTool, Content: []*ai.Part{ai.NewTextPart("raw tool output")}},
		{Role: store.RoleAssistant, Content: []*ai.Part{ai.NewTextPart("It has two columns.")}},
	})
	if err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	rec := doRequest(t, srv, http.MethodGet,
		"/api/v1/sessions/"+sessionID.String()+"/messages", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse[struct {
		Messages []messageResponse `json:"messages"`
	}](t, rec)
	if len(resp.Messages) != 2 {
		t.Fatalf("got %d messages, want 2 (tool turn hidden)", len(resp.Messages))
	}
	if resp.Messages[0].Role != store.RoleUser || resp.Messages[1].Role != store.RoleAssistant {
		t.Errorf("roles %q/%q", resp.Messages[0].Role, resp.Messages[1].Role)
	}
}

func TestDeleteSession(t *testing.T) {
	srv, convStore := newTestServer(t)

	created, err := convStore.CreateSession(context.Background(), "to delete")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	rec := doRequest(t, srv, http.MethodDelete, "/api/v1/sessions/"+created.ID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d, want 204", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/sessions/"+created.ID.String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status %d after delete, want 404", rec.Code)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/chat",
		map[string]string{"message": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rec.Code)
	}
}

func TestChatRejectsInvalidSessionID(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/chat",
		map[string]string{"session_id": "nope", "message": "hello"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rec.Code)
	}
}

func TestChatRejectsUnknownFields(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/chat",
		map[string]string{"message": "hi", "bogus": "field"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rec.Code)
	}
}
