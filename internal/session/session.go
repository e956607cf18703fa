// Package session provides conversation session persistence.
//
// A session is an opaque continuity token plus its ordered message history.
// Two implementations of Store exist: MemoryStore (default, process-local)
// and PostgresStore (durable, transactional turn commit).
package session

import (
	"context"
	"errors"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrSessionNotFound indicates the session id does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrEmptyTurn indicates AppendTurn was called with no messages.
	ErrEmptyTurn = errors.New("empty turn")
)

// Role constants define valid message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
	RoleModel  = "model"
	RoleTool   = "tool"
)

// Session represents a conversation session.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message represents a single conversation message. Content stores Genkit's
// part slice (text, tool request and tool response parts), serialized as
// JSONB by the PostgreSQL backend.
type Message struct {
	ID             uuid.UUID
	SessionID      uuid.UUID
	Role           string // "system" | "user" | "model" | "tool"
	Content        []*ai.Part
	SequenceNumber int
	CreatedAt      time.Time
}

// AIMessage converts the stored message to the model-layer message type.
func (m *Message) AIMessage() *ai.Message {
	return &ai.Message{
		Role:    ai.Role(m.Role),
		Content: m.Content,
	}
}

// Store is the session persistence contract used by the agent loop and the
// HTTP API. Implementations must be safe for concurrent use.
type Store interface {
	// Resolve maps a client-supplied continuity token to a session. An
	// absent, malformed, or unknown token yields a fresh session; created
	// reports whether one was created. Resolving an existing id never
	// errors for data reasons.
	Resolve(ctx context.Context, token string) (s *Session, created bool, err error)

	// AppendTurn atomically appends one turn's messages to the session
	// history. Either all messages are appended in order, or none are.
	AppendTurn(ctx context.Context, sessionID uuid.UUID, messages []*Message) error

	// Messages returns the session's history ordered by sequence number.
	// Returns ErrSessionNotFound for an unknown session.
	Messages(ctx context.Context, sessionID uuid.UUID) ([]*Message, error)

	// List returns sessions ordered by most recently updated first.
	List(ctx context.Context, limit, offset int) ([]*Session, error)

	// Delete removes a session and its messages. Returns ErrSessionNotFound
	// for an unknown session.
	Delete(ctx context.Context, sessionID uuid.UUID) error
}
