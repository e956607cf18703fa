package stream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewWriter_SetsHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter() = %v", err)
	}
	if w == nil {
		t.Fatal("writer is nil")
	}

	headers := rec.Header()
	if got := headers.Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", got)
	}
	if got := headers.Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", got)
	}
	if got := headers.Get("X-Accel-Buffering"); got != "no" {
		t.Errorf("X-Accel-Buffering = %q, want no", got)
	}
}

// noFlushWriter does not implement http.Flusher.
type noFlushWriter struct {
	header http.Header
}

func (w *noFlushWriter) Header() http.Header {
	if w.header == nil {
		w.header = make(http.Header)
	}
	return w.header
}

func (*noFlushWriter) Write([]byte) (int, error) { return 0, nil }
func (*noFlushWriter) WriteHeader(int)           {}

func TestNewWriter_NoFlusher(t *testing.T) {
	if _, err := NewWriter(&noFlushWriter{}); err == nil {
		t.Error("expected error for non-Flusher ResponseWriter")
	}
}

func TestWriteEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter() = %v", err)
	}

	if err := w.WriteEvent(&ClientEvent{Type: TypeContent, Content: "hello"}); err != nil {
		t.Fatalf("WriteEvent() = %v", err)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: content\n") {
		t.Errorf("missing event name line: %q", body)
	}
	if !strings.Contains(body, `data: {"type":"content","content":"hello"}`) {
		t.Errorf("missing JSON data line: %q", body)
	}
	if !strings.HasSuffix(body, "\n\n") {
		t.Errorf("event not terminated by blank line: %q", body)
	}
}

func TestWriteEvent_NewlinesStayOnOneDataLine(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter() = %v", err)
	}

	if err := w.WriteEvent(&ClientEvent{Type: TypeContent, Content: "line one\nline two"}); err != nil {
		t.Fatalf("WriteEvent() = %v", err)
	}

	// JSON escaping keeps the payload on a single data line.
	body := rec.Body.String()
	if got := strings.Count(body, "data: "); got != 1 {
		t.Errorf("data lines = %d, want 1: %q", got, body)
	}
	if !strings.Contains(body, `line one\nline two`) {
		t.Errorf("newline not JSON-escaped: %q", body)
	}
}

func TestWriteEvent_Nil(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter() = %v", err)
	}

	if err := w.WriteEvent(nil); err != nil {
		t.Fatalf("WriteEvent(nil) = %v", err)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("nil event wrote %q", rec.Body.String())
	}
}

func TestWriteRetry(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter() = %v", err)
	}

	if err := w.WriteRetry(5000); err != nil {
		t.Fatalf("WriteRetry() = %v", err)
	}
	if got := rec.Body.String(); got != "retry: 5000\n\n" {
		t.Errorf("body = %q", got)
	}
}

func TestWriteEvent_OmitsEmptyFields(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter() = %v", err)
	}

	if err := w.WriteEvent(&ClientEvent{Type: TypeEnd}); err != nil {
		t.Fatalf("WriteEvent() = %v", err)
	}
	if !strings.Contains(rec.Body.String(), `data: {"type":"end"}`) {
		t.Errorf("empty fields not omitted: %q", rec.Body.String())
	}
}
