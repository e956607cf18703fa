package agent

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
)

// EventKind identifies the lifecycle event emitted by Loop.Run.
type EventKind int

const (
	// KindLoopStarted is emitted once, first, with the resolved session.
	KindLoopStarted EventKind = iota

	// KindTextFragment carries one streamed chunk of model text.
	KindTextFragment

	// KindTurnEnded is emitted when a model turn completes, with the full
	// model message (text and any tool request parts).
	KindTurnEnded

	// KindToolStarted is emitted per tool call, in call-issue order,
	// before execution begins.
	KindToolStarted

	// KindToolEnded carries one successful tool result.
	KindToolEnded

	// KindToolFailed carries one recoverable tool failure. The loop
	// continues; the failure is reported back to the model.
	KindToolFailed

	// KindLoopEnded is emitted exactly once as the final event, on every
	// path including failures.
	KindLoopEnded
)

// String returns the event kind name for logging.
func (k EventKind) String() string {
	switch k {
	case KindLoopStarted:
		return "loop_started"
	case KindTextFragment:
		return "text_fragment"
	case KindTurnEnded:
		return "turn_ended"
	case KindToolStarted:
		return "tool_started"
	case KindToolEnded:
		return "tool_ended"
	case KindToolFailed:
		return "tool_failed"
	case KindLoopEnded:
		return "loop_ended"
	default:
		return "unknown"
	}
}

// Event is one lifecycle event of an agent run. Which fields are set depends
// on Kind.
type Event struct {
	Kind       EventKind
	SessionID  uuid.UUID
	NewSession bool        // LoopStarted: session was created for this run
	Text       string      // TextFragment
	Message    *ai.Message // TurnEnded: the completed model message
	CallID     string      // Tool*: correlates started/ended/failed
	ToolName   string      // Tool*
	Args       any         // ToolStarted: decoded call arguments
	Result     any         // ToolEnded
	Err        error       // ToolFailed
}
