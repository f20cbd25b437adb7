package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
)

// Store manages session persistence with an embedded SQLite backend.
//
// Store is safe for concurrent use by multiple goroutines; all state lives in
// the database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a new Store instance.
// logger may be nil, in which case slog.Default() is used.
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// CreateSession creates a new conversation session.
// topic may be empty; a topic can be assigned later via SetTopic once the
// first exchange yields a title.
func (s *Store) CreateSession(ctx context.Context, topic string) (*Session, error) {
	session := &Session{
		ID:        uuid.New(),
		Topic:     topic,
		CreatedAt: time.Now().UTC(),
	}
	session.UpdatedAt = session.CreatedAt

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, topic, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		session.ID.String(), nullableTopic(topic), session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Debug("created session", "id", session.ID, "topic", topic)
	return session, nil
}

// Session retrieves a session by ID. Returns ErrNotFound if it does not exist.
func (s *Store) Session(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, topic, created_at, updated_at FROM sessions WHERE id = ?`,
		sessionID.String())

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	return session, nil
}

// SessionByTopic retrieves a session by its topic.
// Returns ErrNotFound if no session carries the topic.
func (s *Store) SessionByTopic(ctx context.Context, topic string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, topic, created_at, updated_at FROM sessions WHERE topic = ?`, topic)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("topic %q: %w", topic, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session by topic %q: %w", topic, err)
	}
	return session, nil
}

// Sessions lists all sessions ordered by updated_at descending, so the most
// recently active conversation comes first.
func (s *Store) Sessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic, created_at, updated_at FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	s.logger.Debug("listed sessions", "count", len(sessions))
	return sessions, nil
}

// SetTopic assigns a topic to an existing session.
// Used after title generation for sessions created without one.
func (s *Store) SetTopic(ctx context.Context, sessionID uuid.UUID, topic string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET topic = ?, updated_at = ? WHERE id = ?`,
		nullableTopic(topic), time.Now().UTC(), sessionID.String())
	if err != nil {
		return fmt.Errorf("failed to set topic for session %s: %w", sessionID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// DeleteSession removes a session and all its messages (CASCADE).
// Idempotent: deleting an unknown session is not an error.
func (s *Store) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = ?`, sessionID.String()); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}

	s.logger.Debug("deleted session", "id", sessionID)
	return nil
}

// AppendMessages appends turns to the end of a session's log.
//
// The session row is created on first append if it does not exist yet.
// Sequence numbers are assigned inside the transaction from the current
// maximum, so the whole batch is ordered atomically; on any failure the
// transaction rolls back and no turn is persisted.
func (s *Store) AppendMessages(ctx context.Context, sessionID uuid.UUID, messages []*Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	now := time.Now().UTC()

	// Session rows come into existence on the first turn.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, topic, created_at, updated_at) VALUES (?, NULL, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		sessionID.String(), now, now); err != nil {
		return fmt.Errorf("failed to ensure session: %w", err)
	}

	var maxSeq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM messages WHERE session_id = ?`,
		sessionID.String()).Scan(&maxSeq); err != nil {
		return fmt.Errorf("failed to read max sequence number: %w", err)
	}

	for i, msg := range messages {
		for j, part := range msg.Content {
			if part == nil {
				return fmt.Errorf("message %d has nil content at index %d", i, j)
			}
		}

		contentJSON, err := json.Marshal(msg.Content)
		if err != nil {
			return fmt.Errorf("failed to marshal message content at index %d: %w", i, err)
		}

		seq := maxSeq + i + 1
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, role, content, sequence_number, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			sessionID.String(), msg.Role, string(contentJSON), seq, now); err != nil {
			return fmt.Errorf("failed to insert message %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, now, sessionID.String()); err != nil {
		return fmt.Errorf("failed to update session metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("appended messages", "session_id", sessionID, "count", len(messages))
	return nil
}

// Messages retrieves all turns for a session in insertion order.
// An unknown session yields an empty slice, not an error.
func (s *Store) Messages(ctx context.Context, sessionID uuid.UUID) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, sequence_number, created_at
		 FROM messages WHERE session_id = ? ORDER BY sequence_number ASC`,
		sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	messages := make([]*Message, 0)
	for rows.Next() {
		var (
			msg         Message
			idStr       string
			contentJSON string
		)
		if err := rows.Scan(&msg.ID, &idStr, &msg.Role, &contentJSON,
			&msg.SequenceNumber, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		msg.SessionID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid session id in message %d: %w", msg.ID, err)
		}

		// A row that no longer parses means the store is corrupt; fail the
		// request rather than return a silently truncated transcript.
		if err := json.Unmarshal([]byte(contentJSON), &msg.Content); err != nil {
			return nil, fmt.Errorf("corrupt content in message %d: %w", msg.ID, err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	s.logger.Debug("retrieved messages", "session_id", sessionID, "count", len(messages))
	return messages, nil
}

// History retrieves the conversation history as Genkit messages, ready to be
// sent to the model.
func (s *Store) History(ctx context.Context, sessionID uuid.UUID) ([]*ai.Message, error) {
	messages, err := s.Messages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	aiMessages := make([]*ai.Message, len(messages))
	for i, msg := range messages {
		aiMessages[i] = &ai.Message{
			Role:    storeRoleToAIRole(msg.Role),
			Content: msg.Content,
		}
	}
	return aiMessages, nil
}

// Ping verifies the underlying store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	return nil
}

// storeRoleToAIRole maps persisted role strings onto Genkit roles.
// The store records "assistant" (UI vocabulary); Genkit calls it "model".
func storeRoleToAIRole(role string) ai.Role {
	switch role {
	case RoleAssistant:
		return ai.RoleModel
	case RoleTool:
		return ai.RoleTool
	default:
		return ai.RoleUser
	}
}

// AIRoleToStoreRole maps a Genkit role onto the persisted role vocabulary.
func AIRoleToStoreRole(role ai.Role) string {
	switch role {
	case ai.RoleModel:
		return RoleAssistant
	case ai.RoleTool:
		return RoleTool
	default:
		return RoleUser
	}
}

// nullableTopic converts an empty topic to NULL so the UNIQUE constraint on
// topics does not collide across untitled sessions.
func nullableTopic(topic string) any {
	if topic == "" {
		return nil
	}
	return topic
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		session Session
		idStr   string
		topic   sql.NullString
	)
	if err := row.Scan(&idStr, &topic, &session.CreatedAt, &session.UpdatedAt); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid session id %q: %w", idStr, err)
	}
	session.ID = id
	session.Topic = topic.String
	return &session, nil
}
