package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Writer wraps an http.ResponseWriter for SSE streaming. Each event is
// flushed immediately so clients see fragments as they are produced, not
// when a buffer fills.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter creates an SSE writer and sets the streaming headers.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flusher interface")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	return &Writer{w: w, flusher: flusher}, nil
}

// WriteRetry advises the client's reconnect delay in milliseconds.
func (w *Writer) WriteRetry(ms int) error {
	if _, err := fmt.Fprintf(w.w, "retry: %d\n\n", ms); err != nil {
		return fmt.Errorf("write retry: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// WriteEvent sends one client event, JSON-encoded in the data field. The
// event name mirrors the payload's type so clients can subscribe with
// addEventListener. JSON encoding never emits raw newlines, so a single
// data line is always well-formed SSE.
func (w *Writer) WriteEvent(ev *ClientEvent) error {
	if ev == nil {
		return nil
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(w.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	w.flusher.Flush()
	return nil
}
