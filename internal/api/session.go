package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/cormorant-ai/cormorant/internal/log"
	"github.com/cormorant-ai/cormorant/internal/session"
)

// sessionHandler serves session listing, history retrieval and deletion.
type sessionHandler struct {
	store  session.Store
	logger log.Logger
}

type sessionJSON struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type messageJSON struct {
	Role           string    `json:"role"`
	Text           string    `json:"text"`
	SequenceNumber int       `json:"sequence_number"`
	CreatedAt      time.Time `json:"created_at"`
}

// list handles GET /api/v1/sessions?limit=&offset=
func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	if limit < 1 || limit > 200 || offset < 0 {
		WriteError(w, http.StatusBadRequest, "invalid_pagination", "limit must be 1-200 and offset non-negative", h.logger)
		return
	}

	sessions, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("listing sessions", "error", err)
		WriteError(w, http.StatusInternalServerError, "storage_error", "listing sessions failed", h.logger)
		return
	}

	out := make([]sessionJSON, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionJSON{
			ID:        s.ID.String(),
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"sessions": out}, h.logger)
}

// messages handles GET /api/v1/sessions/{id}/messages
func (h *sessionHandler) messages(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_session_id", "session id must be a UUID", h.logger)
		return
	}

	msgs, err := h.store.Messages(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			WriteError(w, http.StatusNotFound, "session_not_found", "session does not exist", h.logger)
			return
		}
		h.logger.Error("loading session messages", "session_id", id, "error", err)
		WriteError(w, http.StatusInternalServerError, "storage_error", "loading messages failed", h.logger)
		return
	}

	out := make([]messageJSON, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageJSON{
			Role:           m.Role,
			Text:           textContent(m.Content),
			SequenceNumber: m.SequenceNumber,
			CreatedAt:      m.CreatedAt,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"messages": out}, h.logger)
}

// delete handles DELETE /api/v1/sessions/{id}
func (h *sessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_session_id", "session id must be a UUID", h.logger)
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			WriteError(w, http.StatusNotFound, "session_not_found", "session does not exist", h.logger)
			return
		}
		h.logger.Error("deleting session", "session_id", id, "error", err)
		WriteError(w, http.StatusInternalServerError, "storage_error", "deleting session failed", h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// textContent concatenates the text parts of a message. Tool request and
// response parts carry loop plumbing, not prose, and are omitted.
func textContent(parts []*ai.Part) string {
	var out string
	for _, p := range parts {
		if p.IsText() {
			out += p.Text
		}
	}
	return out
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}
