package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockModelName is the provider-qualified name the mock registers under.
const MockModelName = "mock/test-model"

// MockLLM provides deterministic model responses for testing. It matches the
// last user message against registered patterns and returns the configured
// response. A rule with tool requests returns them on the first matching
// turn; once the transcript contains tool responses, the rule's final text
// is returned instead, so the agent loop terminates naturally.
//
// Thread-safe for concurrent use.
type MockLLM struct {
	mu       sync.Mutex
	rules    []mockRule
	fallback string
	failures []error
	calls    []MockCall
}

type mockRule struct {
	pattern  string            // substring match in last user message
	response string            // text response (final answer for tool rules)
	tools    []*ai.ToolRequest // tool calls to request (nil = text only)
}

// MockCall records a single call to the mock model.
type MockCall struct {
	UserMessage  string // last user message text
	MessageCount int    // transcript length at call time
	ToolTurn     bool   // transcript already contained tool responses
}

// NewMockLLM creates a mock with the given fallback response, returned when
// no pattern matches.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// AddResponse registers a pattern-response pair. Patterns are checked in
// registration order against the last user message; first match wins.
func (m *MockLLM) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern:  strings.ToLower(pattern),
		response: response,
	})
}

// AddToolResponse registers a pattern that triggers tool requests. The first
// matching turn requests the tools; the turn after their responses returns
// finalResponse.
func (m *MockLLM) AddToolResponse(pattern string, toolReqs []*ai.ToolRequest, finalResponse string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern:  strings.ToLower(pattern),
		response: finalResponse,
		tools:    toolReqs,
	})
}

// FailNext queues errors returned by the next calls, in order, before any
// rule matching. Use transient-looking messages ("503 unavailable") to
// exercise retry and anything else for terminal failure.
func (m *MockLLM) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// Calls returns a copy of all recorded calls.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// Reset clears recorded calls and queued failures (keeps rules).
func (m *MockLLM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.failures = nil
}

// RegisterModel registers the mock as a Genkit model named MockModelName.
func (m *MockLLM) RegisterModel(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, MockModelName, &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			Tools:      true,
			SystemRole: true,
			Media:      false,
		},
	}, m.generate)
}

// generate is the Genkit model function.
func (m *MockLLM) generate(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	var userText string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ai.RoleUser {
			userText = req.Messages[i].Text()
			break
		}
	}
	toolTurn := hasToolResponses(req.Messages)

	m.mu.Lock()
	m.calls = append(m.calls, MockCall{
		UserMessage:  userText,
		MessageCount: len(req.Messages),
		ToolTurn:     toolTurn,
	})

	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		m.mu.Unlock()
		return nil, err
	}

	var matched *mockRule
	lower := strings.ToLower(userText)
	for i := range m.rules {
		if strings.Contains(lower, m.rules[i].pattern) {
			matched = &m.rules[i]
			break
		}
	}
	m.mu.Unlock()

	responseText := m.fallback
	if matched != nil {
		responseText = matched.response
	}

	// First matching turn of a tool rule: request the tools, no text.
	if matched != nil && len(matched.tools) > 0 && !toolTurn {
		parts := make([]*ai.Part, 0, len(matched.tools))
		for _, tr := range matched.tools {
			parts = append(parts, ai.NewToolRequestPart(tr))
		}
		return &ai.ModelResponse{
			Request: req,
			Message: &ai.Message{Role: ai.RoleModel, Content: parts},
		}, nil
	}

	if cb != nil {
		_ = cb(ctx, &ai.ModelResponseChunk{
			Content: []*ai.Part{ai.NewTextPart(responseText)},
		})
	}

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: []*ai.Part{ai.NewTextPart(responseText)},
		},
	}, nil
}

func hasToolResponses(msgs []*ai.Message) bool {
	// Only tool responses after the last user message count: earlier ones
	// belong to previous, already-answered turns.
	last := 0
	for i, msg := range msgs {
		if msg.Role == ai.RoleUser {
			last = i
		}
	}
	for _, msg := range msgs[last:] {
		for _, p := range msg.Content {
			if p.IsToolResponse() {
				return true
			}
		}
	}
	return false
}
