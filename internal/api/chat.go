package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cormorant-ai/cormorant/internal/agent"
	"github.com/cormorant-ai/cormorant/internal/log"
	"github.com/cormorant-ai/cormorant/internal/session"
	"github.com/cormorant-ai/cormorant/internal/stream"
)

// maxMessageLen bounds a single user message.
const maxMessageLen = 32 * 1024

// chatHandler serves the chat endpoints. Both go through the same agent
// loop; the streaming endpoint relays events as SSE, the synchronous one
// collects the final text.
type chatHandler struct {
	loop   *agent.Loop
	store  session.Store
	logger log.Logger
}

// stream handles GET /api/v1/chat/stream?message=...&session=...
//
// The response is an SSE stream of client events: a checkpoint first when a
// session was created, content fragments and search progress while the
// agent works, and an end event when the run is over. A terminal model
// failure becomes an error event; the stream still closes with end.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	message := r.URL.Query().Get("message")
	if strings.TrimSpace(message) == "" {
		WriteError(w, http.StatusBadRequest, "missing_message", "message query parameter is required", h.logger)
		return
	}
	if len(message) > maxMessageLen {
		WriteError(w, http.StatusRequestEntityTooLarge, "message_too_long", "message exceeds maximum length", h.logger)
		return
	}

	ctx := r.Context()
	sess, fresh, err := h.store.Resolve(ctx, r.URL.Query().Get("session"))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "session_error", "resolving session failed", h.logger)
		return
	}

	sw, err := stream.NewWriter(w)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming not supported", h.logger)
		return
	}
	if err := sw.WriteRetry(5000); err != nil {
		return
	}

	h.logger.Debug("chat stream started",
		"session_id", sess.ID, "new_session", fresh,
		"request_id", requestIDFromContext(ctx))

	for ev, runErr := range h.loop.Run(ctx, sess, fresh, message) {
		if runErr != nil {
			// Terminal failure: report it and keep draining, the loop's
			// final event closes the stream with end.
			if err := sw.WriteEvent(stream.TranslateError(runErr)); err != nil {
				return
			}
			continue
		}
		if err := sw.WriteEvent(stream.Translate(ev)); err != nil {
			// Write failure means the client is gone; breaking stops the
			// producer and the turn is not committed.
			h.logger.Debug("chat stream client gone", "session_id", sess.ID, "error", err)
			return
		}
	}
}

type sendRequest struct {
	Message string `json:"message"`
	Session string `json:"session,omitempty"`
}

type sendResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// send handles POST /api/v1/chat: the same agent run as stream, buffered
// into one JSON response.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageLen+4096)

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		WriteError(w, http.StatusBadRequest, "missing_message", "message is required", h.logger)
		return
	}
	if len(req.Message) > maxMessageLen {
		WriteError(w, http.StatusRequestEntityTooLarge, "message_too_long", "message exceeds maximum length", h.logger)
		return
	}

	ctx := r.Context()
	sess, fresh, err := h.store.Resolve(ctx, req.Session)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "session_error", "resolving session failed", h.logger)
		return
	}

	var sb strings.Builder
	for ev, runErr := range h.loop.Run(ctx, sess, fresh, req.Message) {
		if runErr != nil {
			h.logger.Error("chat run failed", "session_id", sess.ID, "error", runErr)
			WriteError(w, http.StatusBadGateway, "model_error", runErr.Error(), h.logger)
			return
		}
		if ev.Kind == agent.KindTextFragment {
			sb.WriteString(ev.Text)
		}
	}

	WriteJSON(w, http.StatusOK, sendResponse{
		Response:  sb.String(),
		SessionID: sess.ID.String(),
	}, h.logger)
}
