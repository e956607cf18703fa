package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cormorant-ai/cormorant/internal/log"
)

// PostgresStore persists sessions in PostgreSQL. Turn commits are
// transactional: the session row is locked with SELECT ... FOR UPDATE so
// concurrent writers cannot interleave sequence numbers.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewPostgresStore creates a store backed by the given connection pool.
// The pool is owned by the caller; Close it during application shutdown.
func NewPostgresStore(pool *pgxpool.Pool, logger log.Logger) *PostgresStore {
	if logger == nil {
		logger = log.NewNop()
	}
	return &PostgresStore{pool: pool, logger: logger}
}

// Resolve implements Store.
func (s *PostgresStore) Resolve(ctx context.Context, token string) (*Session, bool, error) {
	if token != "" {
		if id, err := uuid.Parse(token); err == nil {
			sess, err := s.get(ctx, id)
			switch {
			case err == nil:
				return sess, false, nil
			case errors.Is(err, ErrSessionNotFound):
				// Unknown id: fall through to a fresh session.
			default:
				return nil, false, err
			}
		}
	}

	fresh := &Session{ID: uuid.New()}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (id) VALUES ($1) RETURNING created_at, updated_at`,
		fresh.ID)
	if err := row.Scan(&fresh.CreatedAt, &fresh.UpdatedAt); err != nil {
		return nil, false, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Debug("created session", "session_id", fresh.ID)
	return fresh, true, nil
}

func (s *PostgresStore) get(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess := &Session{ID: id}
	row := s.pool.QueryRow(ctx,
		`SELECT created_at, updated_at FROM sessions WHERE id = $1`, id)
	if err := row.Scan(&sess.CreatedAt, &sess.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}
	return sess, nil
}

// AppendTurn implements Store. All messages are inserted in one transaction
// with contiguous sequence numbers; on any failure the transaction rolls
// back and the history is unchanged.
func (s *PostgresStore) AppendTurn(ctx context.Context, sessionID uuid.UUID, messages []*Message) error {
	if len(messages) == 0 {
		return ErrEmptyTurn
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	// Lock the session row so concurrent turns on the same session cannot
	// race on sequence numbers.
	var locked uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("locking session %s: %w", sessionID, err)
	}

	var maxSeq int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM session_messages WHERE session_id = $1`,
		sessionID).Scan(&maxSeq)
	if err != nil {
		return fmt.Errorf("reading max sequence number: %w", err)
	}

	for i, msg := range messages {
		contentJSON, err := json.Marshal(msg.Content)
		if err != nil {
			return fmt.Errorf("marshaling message content at index %d: %w", i, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO session_messages (session_id, role, content, sequence_number)
			 VALUES ($1, $2, $3, $4)`,
			sessionID, msg.Role, contentJSON, maxSeq+i+1)
		if err != nil {
			return fmt.Errorf("inserting message %d: %w", i, err)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE sessions SET updated_at = now() WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("updating session timestamp: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing turn: %w", err)
	}

	s.logger.Debug("appended turn", "session_id", sessionID, "count", len(messages))
	return nil
}

// Messages implements Store.
func (s *PostgresStore) Messages(ctx context.Context, sessionID uuid.UUID) ([]*Message, error) {
	if _, err := s.get(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, role, content, sequence_number, created_at
		 FROM session_messages
		 WHERE session_id = $1
		 ORDER BY sequence_number ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{SessionID: sessionID}
		var contentJSON []byte
		if err := rows.Scan(&msg.ID, &msg.Role, &contentJSON, &msg.SequenceNumber, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		var content []*ai.Part
		if err := json.Unmarshal(contentJSON, &content); err != nil {
			// Skip malformed rows instead of failing the whole history.
			s.logger.Warn("skipping malformed message content",
				"message_id", msg.ID, "error", err)
			continue
		}
		msg.Content = content
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return messages, nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, created_at, updated_at
		 FROM sessions
		 ORDER BY updated_at DESC, id ASC
		 LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*Session, 0, limit)
	for rows.Next() {
		sess := &Session{}
		if err := rows.Scan(&sess.ID, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// Delete implements Store. Messages are removed by the FK cascade.
func (s *PostgresStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}
