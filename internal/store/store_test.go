package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/bqchat/bqchat/internal/database"
	"github.com/bqchat/bqchat/internal/log"
)

// newTestStore opens a migrated store on a throwaway SQLite file.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("closing database: %v", err)
		}
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating database: %v", err)
	}

	return New(db, log.NewNop())
}

func textMessage(role, text string) *Message {
	return &Message{Role: role, Content: []*ai.Part{ai.NewTextPart(text)}}
}

func TestAppendAndLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := uuid.New()

	turns := []*Message{
		textMessage(RoleUser, "how many orders shipped last week?"),
		textMessage(RoleAssistant, "There were 42 orders."),
	}
	if err := s.AppendMessages(ctx, sessionID, turns); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	got, err := s.Messages(ctx, sessionID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	for i, msg := range got {
		if msg.SequenceNumber != i+1 {
			t.Errorf("message %d: sequence %d, want %d", i, msg.SequenceNumber, i+1)
		}
		if msg.Text() != turns[i].Content[0].Text {
			t.Errorf("message %d: text %q, want %q", i, msg.Text(), turns[i].Content[0].Text)
		}
	}
	if got[0].Role != RoleUser || got[1].Role != RoleAssistant {
		t.Errorf("roles %q/%q, want user/assistant", got[0].Role, got[1].Role)
	}
}

func TestAppendContinuesSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := uuid.New()

	if err := s.AppendMessages(ctx, sessionID, []*Message{
		textMessage(RoleUser, "first"),
	}); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := s.AppendMessages(ctx, sessionID, []*Message{
		textMessage(RoleAssistant, "second"),
		textMessage(RoleUser, "third"),
	}); err != nil {
		t.Fatalf("second append: %v", err)
	}

	got, err := s.Messages(ctx, sessionID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	for i, msg := range got {
		if msg.SequenceNumber != i+1 {
			t.Errorf("message %d: sequence %d, want %d", i, msg.SequenceNumber, i+1)
		}
	}
}

func TestAppendCreatesSessionRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := uuid.New()

	if err := s.AppendMessages(ctx, sessionID, []*Message{
		textMessage(RoleUser, "hello"),
	}); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	sess, err := s.Session(ctx, sessionID)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if sess.ID != sessionID {
		t.Errorf("session id %s, want %s", sess.ID, sessionID)
	}
}

func TestAppendRejectsNilPart(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := uuid.New()

	err := s.AppendMessages(ctx, sessionID, []*Message{
		{Role: RoleUser, Content: []*ai.Part{nil}},
	})
	if err == nil {
		t.Fatal("expected error for nil content part")
	}

	// The whole batch rolls back.
	got, err := s.Messages(ctx, sessionID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d messages after failed append, want 0", len(got))
	}
}

func TestMessagesUnknownSessionIsEmpty(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Messages(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d messages, want 0", len(got))
	}
}

func TestSessionNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Session(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestSessionByTopic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateSession(ctx, "orders analysis")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	found, err := s.SessionByTopic(ctx, "orders analysis")
	if err != nil {
		t.Fatalf("SessionByTopic: %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("found session %s, want %s", found.ID, created.ID)
	}

	if _, err := s.SessionByTopic(ctx, "no such topic"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestSetTopic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := s.SetTopic(ctx, created.ID, "revenue by region"); err != nil {
		t.Fatalf("SetTopic: %v", err)
	}

	got, err := s.Session(ctx, created.ID)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if got.Topic != "revenue by region" {
		t.Errorf("topic %q, want %q", got.Topic, "revenue by region")
	}

	if err := s.SetTopic(ctx, uuid.New(), "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestUntitledSessionsDoNotCollide(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateSession(ctx, ""); err != nil {
		t.Fatalf("first CreateSession: %v", err)
	}
	if _, err := s.CreateSession(ctx, ""); err != nil {
		t.Fatalf("second CreateSession: %v", err)
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := uuid.New()

	if err := s.AppendMessages(ctx, sessionID, []*Message{
		textMessage(RoleUser, "hello"),
		textMessage(RoleAssistant, "hi"),
	}); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	if err := s.DeleteSession(ctx, sessionID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	if _, err := s.Session(ctx, sessionID); !errors.Is(err, ErrNotFound) {
		t.Errorf("session still exists after delete: %v", err)
	}
	got, err := s.Messages(ctx, sessionID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d messages after delete, want 0", len(got))
	}

	// Idempotent.
	if err := s.DeleteSession(ctx, sessionID); err != nil {
		t.Errorf("repeated delete: %v", err)
	}
}

func TestDeleteSessionCascadesOnFreshConnection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := uuid.New()

	if err := s.AppendMessages(ctx, sessionID, []*Message{
		textMessage(RoleUser, "hello"),
		textMessage(RoleAssistant, "hi"),
	}); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	// Pin the connection the append used so the delete is forced onto a
	// connection the pool opens fresh. Cascade enforcement must hold on
	// every connection, not just the first one the pool handed out.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		t.Fatalf("pinning connection: %v", err)
	}
	defer conn.Close()

	if err := s.DeleteSession(ctx, sessionID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	got, err := s.Messages(ctx, sessionID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d messages after delete, want 0", len(got))
	}
}

func TestConcurrentAppendsSameSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := uuid.New()

	// Simultaneous submissions to one session must serialize: every append
	// commits, none is lost to a write-lock conflict.
	const writers = 4
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.AppendMessages(ctx, sessionID, []*Message{
				textMessage(RoleUser, "duplicate submission"),
			})
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("append %d: %v", i, err)
		}
	}

	got, err := s.Messages(ctx, sessionID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(got) != writers {
		t.Fatalf("got %d messages, want %d", len(got), writers)
	}
	for i, msg := range got {
		if msg.SequenceNumber != i+1 {
			t.Errorf("message %d: sequence %d, want %d", i, msg.SequenceNumber, i+1)
		}
	}
}

func TestMessagesCorruptContentIsError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := uuid.New()

	if err := s.AppendMessages(ctx, sessionID, []*Message{
		textMessage(RoleUser, "hello"),
		textMessage(RoleAssistant, "hi"),
	}); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE messages SET content = 'not json' WHERE session_id = ? AND sequence_number = 1`,
		sessionID.String()); err != nil {
		t.Fatalf("corrupting row: %v", err)
	}

	// A corrupt row fails the load; a silently shortened transcript would
	// hide the damage from the caller.
	if _, err := s.Messages(ctx, sessionID); err == nil {
		t.Fatal("expected error loading corrupt message content")
	}
}

func TestSessionsOrderedByRecency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateSession(ctx, "first")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	second, err := s.CreateSession(ctx, "second")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	// Touch the older session; it should move to the front.
	if err := s.AppendMessages(ctx, first.ID, []*Message{
		textMessage(RoleUser, "back again"),
	}); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if sessions[0].ID != first.ID || sessions[1].ID != second.ID {
		t.Errorf("order %s, %s; want %s, %s",
			sessions[0].ID, sessions[1].ID, first.ID, second.ID)
	}
}

func TestHistoryRoleMapping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := uuid.New()

	if err := s.AppendMessages(ctx, sessionID, []*Message{
		textMessage(RoleUser, "question"),
		textMessage(RoleAssistant, "answer"),
		textMessage(RoleTool, "tool output"),
	}); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	history, err := s.History(ctx, sessionID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	want := []ai.Role{ai.RoleUser, ai.RoleModel, ai.RoleTool}
	if len(history) != len(want) {
		t.Fatalf("got %d history messages, want %d", len(history), len(want))
	}
	for i, msg := range history {
		if msg.Role != want[i] {
			t.Errorf("message %d: role %q, want %q", i, msg.Role, want[i])
		}
	}
}

func TestRoleMappingInverse(t *testing.T) {
	tests := []struct {
		aiRole ai.Role
		want   string
	}{
		{ai.RoleUser, RoleUser},
		{ai.RoleModel, RoleAssistant},
		{ai.RoleTool, RoleTool},
		{ai.RoleSystem, RoleUser},
	}
	for _, tt := range tests {
		if got := AIRoleToStoreRole(tt.aiRole); got != tt.want {
			t.Errorf("AIRoleToStoreRole(%q) = %q, want %q", tt.aiRole, got, tt.want)
		}
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestPingClosedStore(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	s := New(db, log.NewNop())
	if err := db.Close(); err != nil {
		t.Fatalf("closing database: %v", err)
	}

	if err := s.Ping(context.Background()); err == nil {
		t.Error("expected error pinging closed store")
	}
}
