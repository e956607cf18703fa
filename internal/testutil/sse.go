package testutil

import (
	"bufio"
	"strings"
	"testing"
)

// SSEEvent represents a parsed Server-Sent Event.
type SSEEvent struct {
	Type string // event: value
	Data string // data: value (multi-line joined with \n)
}

// ParseSSEEvents parses an SSE stream into structured events.
//
// Handles the W3C SSE format:
//   - Multiple "data:" lines are joined with newline
//   - Empty line terminates an event
//   - data: before event: defaults to the "message" event type
//   - "retry:" hints and ":" comments are ignored
func ParseSSEEvents(t *testing.T, body string) []SSEEvent {
	t.Helper()

	var events []SSEEvent
	scanner := bufio.NewScanner(strings.NewReader(body))

	var currentEvent SSEEvent
	var dataLines []string
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "event: "):
			if currentEvent.Type != "" && len(dataLines) > 0 {
				t.Fatalf("SSE parse error at line %d: new event before previous event terminated (got %q)", lineNum, line)
			}
			currentEvent.Type = strings.TrimPrefix(line, "event: ")

		case strings.HasPrefix(line, "data: "):
			if currentEvent.Type == "" {
				currentEvent.Type = "message"
			}
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))

		case strings.HasPrefix(line, "retry: "):
			// Reconnection hint, not an event.

		case line == "":
			if currentEvent.Type != "" {
				currentEvent.Data = strings.Join(dataLines, "\n")
				events = append(events, currentEvent)
				currentEvent = SSEEvent{}
				dataLines = nil
			}

		default:
			if !strings.HasPrefix(line, ":") {
				t.Fatalf("SSE parse error at line %d: unexpected SSE line: %q", lineNum, line)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		t.Fatalf("SSE scan error: %v", err)
	}

	if currentEvent.Type != "" {
		t.Fatalf("SSE stream ended without terminating event %q (missing empty line)", currentEvent.Type)
	}

	return events
}

// FindEvent finds the first event of the given type. Returns nil if absent.
func FindEvent(events []SSEEvent, eventType string) *SSEEvent {
	for i := range events {
		if events[i].Type == eventType {
			return &events[i]
		}
	}
	return nil
}

// FindAllEvents finds all events of the given type.
func FindAllEvents(events []SSEEvent, eventType string) []SSEEvent {
	var found []SSEEvent
	for _, e := range events {
		if e.Type == eventType {
			found = append(found, e)
		}
	}
	return found
}

// EventTypes returns the type sequence of the events, for order assertions.
func EventTypes(events []SSEEvent) []string {
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}
