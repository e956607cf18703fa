package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cormorant-ai/cormorant/internal/log"
)

// MemoryStore is an in-process Store. It is the default backend; history
// does not survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	messages map[uuid.UUID][]*Message
	logger   log.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger log.Logger) *MemoryStore {
	if logger == nil {
		logger = log.NewNop()
	}
	return &MemoryStore{
		sessions: make(map[uuid.UUID]*Session),
		messages: make(map[uuid.UUID][]*Message),
		logger:   logger,
	}
}

// Resolve implements Store. Any token that does not parse as a UUID or does
// not name a known session yields a fresh session.
func (s *MemoryStore) Resolve(_ context.Context, token string) (*Session, bool, error) {
	if token != "" {
		if id, err := uuid.Parse(token); err == nil {
			s.mu.RLock()
			existing, ok := s.sessions[id]
			s.mu.RUnlock()
			if ok {
				return copySession(existing), false, nil
			}
		}
	}

	now := time.Now()
	fresh := &Session{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}

	s.mu.Lock()
	s.sessions[fresh.ID] = fresh
	s.mu.Unlock()

	s.logger.Debug("created session", "session_id", fresh.ID)
	return copySession(fresh), true, nil
}

// AppendTurn implements Store. The write is atomic under the store mutex.
func (s *MemoryStore) AppendTurn(_ context.Context, sessionID uuid.UUID, messages []*Message) error {
	if len(messages) == 0 {
		return ErrEmptyTurn
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	now := time.Now()
	seq := len(s.messages[sessionID])
	for i, msg := range messages {
		stored := *msg
		stored.ID = uuid.New()
		stored.SessionID = sessionID
		stored.SequenceNumber = seq + i + 1
		stored.CreatedAt = now
		s.messages[sessionID] = append(s.messages[sessionID], &stored)
	}
	sess.UpdatedAt = now

	s.logger.Debug("appended turn", "session_id", sessionID, "count", len(messages))
	return nil
}

// Messages implements Store.
func (s *MemoryStore) Messages(_ context.Context, sessionID uuid.UUID) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, ErrSessionNotFound
	}

	stored := s.messages[sessionID]
	out := make([]*Message, len(stored))
	copy(out, stored)
	return out, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, limit, offset int) ([]*Session, error) {
	s.mu.RLock()
	all := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, copySession(sess))
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.After(all[j].UpdatedAt)
		}
		// Stable tie-break so pagination is deterministic.
		return all[i].ID.String() < all[j].ID.String()
	})

	if offset >= len(all) {
		return []*Session{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	delete(s.messages, sessionID)
	return nil
}

func copySession(s *Session) *Session {
	c := *s
	return &c
}
