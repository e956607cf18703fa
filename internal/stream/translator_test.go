package stream

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/cormorant-ai/cormorant/internal/agent"
	"github.com/cormorant-ai/cormorant/internal/tools"
)

func TestTranslate(t *testing.T) {
	sessID := uuid.New()

	tests := []struct {
		name string
		ev   agent.Event
		want *ClientEvent
	}{
		{
			name: "new session start becomes checkpoint",
			ev:   agent.Event{Kind: agent.KindLoopStarted, SessionID: sessID, NewSession: true},
			want: &ClientEvent{Type: TypeCheckpoint, SessionID: sessID.String()},
		},
		{
			name: "resumed session start is silent",
			ev:   agent.Event{Kind: agent.KindLoopStarted, SessionID: sessID, NewSession: false},
			want: nil,
		},
		{
			name: "text fragment becomes content",
			ev:   agent.Event{Kind: agent.KindTextFragment, Text: "partial answer"},
			want: &ClientEvent{Type: TypeContent, Content: "partial answer"},
		},
		{
			name: "turn boundary is silent",
			ev:   agent.Event{Kind: agent.KindTurnEnded},
			want: nil,
		},
		{
			name: "search start carries the query",
			ev: agent.Event{
				Kind:     agent.KindToolStarted,
				ToolName: tools.SearchToolName,
				Args:     map[string]any{"query": "latest go release"},
			},
			want: &ClientEvent{Type: TypeSearchStart, Query: "latest go release"},
		},
		{
			name: "search start with malformed args",
			ev: agent.Event{
				Kind:     agent.KindToolStarted,
				ToolName: tools.SearchToolName,
				Args:     "not a map",
			},
			want: &ClientEvent{Type: TypeSearchStart},
		},
		{
			name: "non-search tool start is silent",
			ev:   agent.Event{Kind: agent.KindToolStarted, ToolName: tools.FetchToolName},
			want: nil,
		},
		{
			name: "search results carry urls",
			ev: agent.Event{
				Kind:     agent.KindToolEnded,
				ToolName: tools.SearchToolName,
				Result: tools.SearchOutput{
					Query: "q",
					Results: []tools.SearchResult{
						{URL: "https://a.example/one", Title: "One"},
						{URL: "", Title: "dropped, no url"},
						{URL: "https://b.example/two", Title: "Two"},
					},
				},
			},
			want: &ClientEvent{Type: TypeSearchResults, URLs: []string{"https://a.example/one", "https://b.example/two"}},
		},
		{
			name: "search results from generic map",
			ev: agent.Event{
				Kind:     agent.KindToolEnded,
				ToolName: tools.SearchToolName,
				Result: map[string]any{
					"query": "q",
					"results": []any{
						map[string]any{"url": "https://c.example", "title": "C"},
						"not an object",
						map[string]any{"title": "no url"},
					},
				},
			},
			want: &ClientEvent{Type: TypeSearchResults, URLs: []string{"https://c.example"}},
		},
		{
			name: "search results with unusable result shape",
			ev: agent.Event{
				Kind:     agent.KindToolEnded,
				ToolName: tools.SearchToolName,
				Result:   42,
			},
			want: &ClientEvent{Type: TypeSearchResults},
		},
		{
			name: "search failure becomes search_error",
			ev: agent.Event{
				Kind:     agent.KindToolFailed,
				ToolName: tools.SearchToolName,
				Err:      errors.New("backend unreachable"),
			},
			want: &ClientEvent{Type: TypeSearchError, Error: "backend unreachable"},
		},
		{
			name: "non-search tool failure is silent",
			ev: agent.Event{
				Kind:     agent.KindToolFailed,
				ToolName: tools.FetchToolName,
				Err:      errors.New("blocked"),
			},
			want: nil,
		},
		{
			name: "loop end becomes end",
			ev:   agent.Event{Kind: agent.KindLoopEnded},
			want: &ClientEvent{Type: TypeEnd},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Translate(tt.ev)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Translate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTranslateError(t *testing.T) {
	got := TranslateError(errors.New("model call: boom"))
	if got.Type != TypeError || got.Error != "model call: boom" {
		t.Errorf("TranslateError() = %+v", got)
	}

	got = TranslateError(nil)
	if got.Type != TypeError || got.Error == "" {
		t.Errorf("TranslateError(nil) = %+v, want generic message", got)
	}
}
