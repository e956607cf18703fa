// Package stream translates agent loop events into the client-facing SSE
// protocol. The loop's internal vocabulary (turns, tool calls, barriers) is
// richer than what clients need; the translator collapses it into a small,
// stable set of wire events and hides tools that have no client-side
// rendering.
package stream

import (
	"github.com/cormorant-ai/cormorant/internal/agent"
	"github.com/cormorant-ai/cormorant/internal/tools"
)

// Client event types on the wire.
const (
	TypeCheckpoint    = "checkpoint"
	TypeContent       = "content"
	TypeSearchStart   = "search_start"
	TypeSearchResults = "search_results"
	TypeSearchError   = "search_error"
	TypeError         = "error"
	TypeEnd           = "end"
)

// ClientEvent is one SSE event as serialized to the client.
type ClientEvent struct {
	Type      string   `json:"type"`
	SessionID string   `json:"session_id,omitempty"`
	Content   string   `json:"content,omitempty"`
	Query     string   `json:"query,omitempty"`
	URLs      []string `json:"urls,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Translate maps one loop event to its client event, or nil when the event
// has no client-facing representation (turn boundaries, tools without a
// rendering, resumed-session starts).
func Translate(ev agent.Event) *ClientEvent {
	switch ev.Kind {
	case agent.KindLoopStarted:
		// The checkpoint tells the client which token to present next time;
		// an existing session needs no reminder.
		if !ev.NewSession {
			return nil
		}
		return &ClientEvent{Type: TypeCheckpoint, SessionID: ev.SessionID.String()}

	case agent.KindTextFragment:
		return &ClientEvent{Type: TypeContent, Content: ev.Text}

	case agent.KindToolStarted:
		if ev.ToolName != tools.SearchToolName {
			return nil
		}
		return &ClientEvent{Type: TypeSearchStart, Query: queryArg(ev.Args)}

	case agent.KindToolEnded:
		if ev.ToolName != tools.SearchToolName {
			return nil
		}
		return &ClientEvent{Type: TypeSearchResults, URLs: resultURLs(ev.Result)}

	case agent.KindToolFailed:
		if ev.ToolName != tools.SearchToolName {
			return nil
		}
		msg := "search failed"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		return &ClientEvent{Type: TypeSearchError, Error: msg}

	case agent.KindLoopEnded:
		return &ClientEvent{Type: TypeEnd}

	default:
		// Turn boundaries are loop-internal.
		return nil
	}
}

// TranslateError maps a terminal loop error to the client error event.
func TranslateError(err error) *ClientEvent {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &ClientEvent{Type: TypeError, Error: msg}
}

// queryArg extracts the search query from tool call arguments. Arguments
// arrive as the model sent them, so shape is not guaranteed.
func queryArg(args any) string {
	m, ok := args.(map[string]any)
	if !ok {
		return ""
	}
	q, _ := m["query"].(string)
	return q
}

// resultURLs mines result URLs out of a finished search call. The in-process
// result is a typed SearchOutput; anything that went through a JSON boundary
// arrives as a generic map, so both shapes are handled and entries that do
// not conform are skipped.
func resultURLs(result any) []string {
	switch out := result.(type) {
	case tools.SearchOutput:
		urls := make([]string, 0, len(out.Results))
		for _, r := range out.Results {
			if r.URL != "" {
				urls = append(urls, r.URL)
			}
		}
		return urls

	case map[string]any:
		raw, ok := out["results"].([]any)
		if !ok {
			return nil
		}
		urls := make([]string, 0, len(raw))
		for _, entry := range raw {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if u, ok := m["url"].(string); ok && u != "" {
				urls = append(urls, u)
			}
		}
		return urls

	default:
		return nil
	}
}
