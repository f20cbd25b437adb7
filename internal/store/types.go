package store

import (
	"errors"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
)

// ErrNotFound indicates the requested session does not exist in the store.
var ErrNotFound = errors.New("session not found")

// Role constants define valid turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// TopicMaxLength is the maximum length of a session topic.
const TopicMaxLength = 100

// Session represents a conversation session.
type Session struct {
	ID        uuid.UUID
	Topic     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message represents a single conversation turn.
// Content stores Genkit's ai.Part slice serialized as JSON, so tool requests
// and responses survive a round trip through the store.
type Message struct {
	ID             int64
	SessionID      uuid.UUID
	Role           string // "user" | "assistant" | "tool"
	Content        []*ai.Part
	SequenceNumber int
	CreatedAt      time.Time
}

// Text returns the concatenated text parts of the message.
func (m *Message) Text() string {
	var out string
	for _, p := range m.Content {
		if p != nil && p.IsText() {
			out += p.Text
		}
	}
	return out
}
