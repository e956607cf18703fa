package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/cormorant-ai/cormorant/internal/session"
)

func textMessage(role, text string) *session.Message {
	return &session.Message{
		Role:    role,
		Content: []*ai.Part{ai.NewTextPart(text)},
	}
}

func TestMemoryStore_Resolve_FreshOnEmptyToken(t *testing.T) {
	store := session.NewMemoryStore(nil)

	sess, created, err := store.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("Resolve() = %v", err)
	}
	if !created {
		t.Error("created = false, want true for empty token")
	}
	if sess.ID == uuid.Nil {
		t.Error("fresh session has nil id")
	}
}

func TestMemoryStore_Resolve_FreshOnMalformedToken(t *testing.T) {
	store := session.NewMemoryStore(nil)

	sess, created, err := store.Resolve(context.Background(), "not-a-uuid")
	if err != nil {
		t.Fatalf("Resolve() = %v, want fresh session for malformed token", err)
	}
	if !created {
		t.Error("created = false, want true for malformed token")
	}
	if sess == nil {
		t.Fatal("session is nil")
	}
}

func TestMemoryStore_Resolve_FreshOnUnknownToken(t *testing.T) {
	store := session.NewMemoryStore(nil)

	unknown := uuid.NewString()
	sess, created, err := store.Resolve(context.Background(), unknown)
	if err != nil {
		t.Fatalf("Resolve() = %v", err)
	}
	if !created {
		t.Error("created = false, want true for unknown token")
	}
	if sess.ID.String() == unknown {
		t.Error("fresh session reused the unknown token id")
	}
}

func TestMemoryStore_Resolve_Idempotent(t *testing.T) {
	store := session.NewMemoryStore(nil)
	ctx := context.Background()

	first, _, err := store.Resolve(ctx, "")
	if err != nil {
		t.Fatalf("Resolve() = %v", err)
	}

	for range 3 {
		again, created, err := store.Resolve(ctx, first.ID.String())
		if err != nil {
			t.Fatalf("Resolve(existing) = %v", err)
		}
		if created {
			t.Error("created = true, want false for existing token")
		}
		if again.ID != first.ID {
			t.Errorf("resolved id = %s, want %s", again.ID, first.ID)
		}
	}
}

func TestMemoryStore_AppendTurn_RoundTrip(t *testing.T) {
	store := session.NewMemoryStore(nil)
	ctx := context.Background()

	sess, _, err := store.Resolve(ctx, "")
	if err != nil {
		t.Fatalf("Resolve() = %v", err)
	}

	turn := []*session.Message{
		textMessage(session.RoleUser, "what is the capital of France?"),
		textMessage(session.RoleModel, "Paris."),
	}
	if err := store.AppendTurn(ctx, sess.ID, turn); err != nil {
		t.Fatalf("AppendTurn() = %v", err)
	}

	got, err := store.Messages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Messages() = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(got))
	}
	if got[0].Role != session.RoleUser || got[1].Role != session.RoleModel {
		t.Errorf("roles = %s, %s, want user, model", got[0].Role, got[1].Role)
	}
	if got[0].SequenceNumber != 1 || got[1].SequenceNumber != 2 {
		t.Errorf("sequence numbers = %d, %d, want 1, 2", got[0].SequenceNumber, got[1].SequenceNumber)
	}
	if got[1].Content[0].Text != "Paris." {
		t.Errorf("content = %q, want %q", got[1].Content[0].Text, "Paris.")
	}
}

func TestMemoryStore_AppendTurn_SequencesAcrossTurns(t *testing.T) {
	store := session.NewMemoryStore(nil)
	ctx := context.Background()

	sess, _, _ := store.Resolve(ctx, "")
	for i := range 3 {
		turn := []*session.Message{
			textMessage(session.RoleUser, "q"),
			textMessage(session.RoleModel, "a"),
		}
		if err := store.AppendTurn(ctx, sess.ID, turn); err != nil {
			t.Fatalf("AppendTurn(%d) = %v", i, err)
		}
	}

	got, err := store.Messages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Messages() = %v", err)
	}
	for i, msg := range got {
		if msg.SequenceNumber != i+1 {
			t.Errorf("message %d sequence = %d, want %d", i, msg.SequenceNumber, i+1)
		}
	}
}

func TestMemoryStore_AppendTurn_Errors(t *testing.T) {
	store := session.NewMemoryStore(nil)
	ctx := context.Background()

	if err := store.AppendTurn(ctx, uuid.New(), []*session.Message{textMessage("user", "x")}); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("AppendTurn(unknown) = %v, want ErrSessionNotFound", err)
	}

	sess, _, _ := store.Resolve(ctx, "")
	if err := store.AppendTurn(ctx, sess.ID, nil); !errors.Is(err, session.ErrEmptyTurn) {
		t.Errorf("AppendTurn(empty) = %v, want ErrEmptyTurn", err)
	}
}

func TestMemoryStore_Messages_UnknownSession(t *testing.T) {
	store := session.NewMemoryStore(nil)
	if _, err := store.Messages(context.Background(), uuid.New()); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Messages(unknown) = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := session.NewMemoryStore(nil)
	ctx := context.Background()

	sess, _, _ := store.Resolve(ctx, "")
	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete() = %v", err)
	}
	if _, err := store.Messages(ctx, sess.ID); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Messages(deleted) = %v, want ErrSessionNotFound", err)
	}
	if err := store.Delete(ctx, sess.ID); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Delete(deleted) = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryStore_List_Pagination(t *testing.T) {
	store := session.NewMemoryStore(nil)
	ctx := context.Background()

	for range 5 {
		if _, _, err := store.Resolve(ctx, ""); err != nil {
			t.Fatalf("Resolve() = %v", err)
		}
	}

	page, err := store.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	if len(page) != 2 {
		t.Errorf("len(page) = %d, want 2", len(page))
	}

	rest, err := store.List(ctx, 10, 2)
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	if len(rest) != 3 {
		t.Errorf("len(rest) = %d, want 3", len(rest))
	}

	empty, err := store.List(ctx, 10, 100)
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("len(empty) = %d, want 0", len(empty))
	}
}

func TestMemoryStore_ConcurrentAppend(t *testing.T) {
	store := session.NewMemoryStore(nil)
	ctx := context.Background()
	sess, _, _ := store.Resolve(ctx, "")

	const writers = 10
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			turn := []*session.Message{
				textMessage(session.RoleUser, "q"),
				textMessage(session.RoleModel, "a"),
			}
			if err := store.AppendTurn(ctx, sess.ID, turn); err != nil {
				t.Errorf("AppendTurn() = %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.Messages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Messages() = %v", err)
	}
	if len(got) != writers*2 {
		t.Fatalf("len(messages) = %d, want %d", len(got), writers*2)
	}
	// Sequence numbers must be contiguous despite concurrent writers.
	seen := make(map[int]bool)
	for _, msg := range got {
		seen[msg.SequenceNumber] = true
	}
	for i := 1; i <= writers*2; i++ {
		if !seen[i] {
			t.Errorf("missing sequence number %d", i)
		}
	}
}
