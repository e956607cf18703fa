package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cormorant-ai/cormorant/internal/session"
	"github.com/cormorant-ai/cormorant/internal/testutil"
)

func TestPostgresStore_Integration(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	store := session.NewPostgresStore(tdb.Pool, nil)
	ctx := context.Background()

	t.Run("resolve fresh and existing", func(t *testing.T) {
		sess, created, err := store.Resolve(ctx, "")
		if err != nil {
			t.Fatalf("Resolve() = %v", err)
		}
		if !created {
			t.Error("created = false, want true")
		}

		again, created, err := store.Resolve(ctx, sess.ID.String())
		if err != nil {
			t.Fatalf("Resolve(existing) = %v", err)
		}
		if created {
			t.Error("created = true, want false for existing session")
		}
		if again.ID != sess.ID {
			t.Errorf("resolved id = %s, want %s", again.ID, sess.ID)
		}
	})

	t.Run("malformed token yields fresh session", func(t *testing.T) {
		sess, created, err := store.Resolve(ctx, "definitely-not-a-uuid")
		if err != nil {
			t.Fatalf("Resolve() = %v", err)
		}
		if !created || sess.ID == uuid.Nil {
			t.Errorf("want fresh session, got created=%v id=%s", created, sess.ID)
		}
	})

	t.Run("turn round trip", func(t *testing.T) {
		sess, _, err := store.Resolve(ctx, "")
		if err != nil {
			t.Fatalf("Resolve() = %v", err)
		}

		turn := []*session.Message{
			{Role: session.RoleUser, Content: []*ai.Part{ai.NewTextPart("hello")}},
			{Role: session.RoleModel, Content: []*ai.Part{ai.NewTextPart("hi there")}},
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
		if got[0].SequenceNumber != 1 || got[1].SequenceNumber != 2 {
			t.Errorf("sequence numbers = %d, %d, want 1, 2",
				got[0].SequenceNumber, got[1].SequenceNumber)
		}
		if got[1].Content[0].Text != "hi there" {
			t.Errorf("content = %q, want %q", got[1].Content[0].Text, "hi there")
		}
	})

	t.Run("tool parts survive serialization", func(t *testing.T) {
		sess, _, err := store.Resolve(ctx, "")
		if err != nil {
			t.Fatalf("Resolve() = %v", err)
		}

		turn := []*session.Message{
			{Role: session.RoleModel, Content: []*ai.Part{
				ai.NewToolRequestPart(&ai.ToolRequest{
					Name:  "web_search",
					Ref:   "call-1",
					Input: map[string]any{"query": "golang release date"},
				}),
			}},
			{Role: session.RoleTool, Content: []*ai.Part{
				ai.NewToolResponsePart(&ai.ToolResponse{
					Name:   "web_search",
					Ref:    "call-1",
					Output: map[string]any{"results": []any{}},
				}),
			}},
		}
		if err := store.AppendTurn(ctx, sess.ID, turn); err != nil {
			t.Fatalf("AppendTurn() = %v", err)
		}

		got, err := store.Messages(ctx, sess.ID)
		if err != nil {
			t.Fatalf("Messages() = %v", err)
		}
		req := got[0].Content[0].ToolRequest
		if req == nil || req.Name != "web_search" || req.Ref != "call-1" {
			t.Errorf("tool request not preserved: %+v", got[0].Content[0])
		}
		resp := got[1].Content[0].ToolResponse
		if resp == nil || resp.Ref != "call-1" {
			t.Errorf("tool response not preserved: %+v", got[1].Content[0])
		}
	})

	t.Run("concurrent turns keep contiguous sequences", func(t *testing.T) {
		sess, _, err := store.Resolve(ctx, "")
		if err != nil {
			t.Fatalf("Resolve() = %v", err)
		}

		const writers = 8
		var g errgroup.Group
		for range writers {
			g.Go(func() error {
				return store.AppendTurn(ctx, sess.ID, []*session.Message{
					{Role: session.RoleUser, Content: []*ai.Part{ai.NewTextPart("q")}},
					{Role: session.RoleModel, Content: []*ai.Part{ai.NewTextPart("a")}},
				})
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("concurrent AppendTurn: %v", err)
		}

		got, err := store.Messages(ctx, sess.ID)
		if err != nil {
			t.Fatalf("Messages() = %v", err)
		}
		if len(got) != writers*2 {
			t.Fatalf("len(messages) = %d, want %d", len(got), writers*2)
		}
		for i, msg := range got {
			if msg.SequenceNumber != i+1 {
				t.Errorf("message %d sequence = %d, want %d", i, msg.SequenceNumber, i+1)
			}
		}
	})

	t.Run("append to unknown session", func(t *testing.T) {
		err := store.AppendTurn(ctx, uuid.New(), []*session.Message{
			{Role: session.RoleUser, Content: []*ai.Part{ai.NewTextPart("x")}},
		})
		if !errors.Is(err, session.ErrSessionNotFound) {
			t.Errorf("AppendTurn(unknown) = %v, want ErrSessionNotFound", err)
		}
	})

	t.Run("delete cascades", func(t *testing.T) {
		sess, _, err := store.Resolve(ctx, "")
		if err != nil {
			t.Fatalf("Resolve() = %v", err)
		}
		if err := store.AppendTurn(ctx, sess.ID, []*session.Message{
			{Role: session.RoleUser, Content: []*ai.Part{ai.NewTextPart("bye")}},
		}); err != nil {
			t.Fatalf("AppendTurn() = %v", err)
		}

		if err := store.Delete(ctx, sess.ID); err != nil {
			t.Fatalf("Delete() = %v", err)
		}
		if _, err := store.Messages(ctx, sess.ID); !errors.Is(err, session.ErrSessionNotFound) {
			t.Errorf("Messages(deleted) = %v, want ErrSessionNotFound", err)
		}

		var orphans int
		err = tdb.Pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM session_messages WHERE session_id = $1`,
			sess.ID).Scan(&orphans)
		if err != nil {
			t.Fatalf("counting orphans: %v", err)
		}
		if orphans != 0 {
			t.Errorf("orphaned messages = %d, want 0", orphans)
		}
	})

	t.Run("list ordering", func(t *testing.T) {
		sessions, err := store.List(ctx, 100, 0)
		if err != nil {
			t.Fatalf("List() = %v", err)
		}
		for i := 1; i < len(sessions); i++ {
			if sessions[i].UpdatedAt.After(sessions[i-1].UpdatedAt) {
				t.Errorf("sessions out of order at %d: %v after %v",
					i, sessions[i].UpdatedAt, sessions[i-1].UpdatedAt)
			}
		}
	})
}
