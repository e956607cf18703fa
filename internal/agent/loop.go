// Package agent implements the agent execution loop: a state machine that
// alternates model turns with tool execution until the model produces a
// plain answer or the turn budget runs out.
//
// The loop owns the iteration itself. The model layer is invoked one turn at
// a time with return-tool-requests semantics; requested tools are executed
// by the registry, their results are appended to the transcript, and the
// model is called again. Progress is reported as a lazy event sequence that
// stops producing as soon as the consumer walks away.
package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/cormorant-ai/cormorant/internal/log"
	"github.com/cormorant-ai/cormorant/internal/session"
	"github.com/cormorant-ai/cormorant/internal/tools"
)

// errConsumerGone aborts a streaming model call when the event consumer has
// stopped iterating. Internal control flow, never surfaced.
var errConsumerGone = errors.New("event consumer gone")

// Config bounds a Loop. Zero fields fall back to defaults in New.
type Config struct {
	// ModelName is the provider-qualified model, e.g. "googleai/gemini-2.5-flash".
	ModelName string

	// SystemPrompt is prepended to every model call.
	SystemPrompt string

	// MaxTurns bounds model turns per run. The loop never calls the model
	// more than MaxTurns times for one user message.
	MaxTurns int

	// ModelTimeout bounds each model call attempt.
	ModelTimeout time.Duration

	// ToolTimeout bounds each tool invocation.
	ToolTimeout time.Duration

	// Retry configures backoff for transient model failures.
	Retry RetryConfig

	// RequestsPerSecond paces outbound model calls. Zero disables pacing.
	RequestsPerSecond float64
}

// Loop runs the agent state machine. Safe for concurrent use; runs on the
// same session are serialized, runs on different sessions proceed in
// parallel.
type Loop struct {
	g        *genkit.Genkit
	store    session.Store
	registry *tools.Registry
	cfg      Config
	limiter  *rate.Limiter
	locks    *sessionLocks
	logger   log.Logger
}

// New creates a Loop. The genkit instance, store and registry are required.
func New(g *genkit.Genkit, store session.Store, registry *tools.Registry, cfg Config, logger log.Logger) (*Loop, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 8
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = 2 * time.Minute
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = 30 * time.Second
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	if logger == nil {
		logger = log.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Loop{
		g:        g,
		store:    store,
		registry: registry,
		cfg:      cfg,
		limiter:  limiter,
		locks:    newSessionLocks(),
		logger:   logger,
	}, nil
}

// toolCall pairs a model tool request with its correlation id.
type toolCall struct {
	id  string
	req *ai.ToolRequest
}

type toolResult struct {
	out any
	err error
}

// Run executes one user message against the session and returns the run's
// event sequence. Events appear in a fixed order: LoopStarted first,
// LoopEnded last on every path. A non-nil error element reports terminal
// model failure; tool failures are ToolFailed events and do not stop the
// run.
//
// The sequence is lazy: nothing happens until iteration starts, and the
// producer stops as soon as the consumer does. The turn is committed to the
// store only when the run reaches its end; an abandoned or failed run leaves
// the history untouched.
func (l *Loop) Run(ctx context.Context, sess *session.Session, fresh bool, userMessage string) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		unlock := l.locks.acquire(sess.ID)
		defer unlock()

		start := time.Now()
		l.logger.Info("agent run started",
			"session_id", sess.ID, "new_session", fresh)

		if !yield(Event{Kind: KindLoopStarted, SessionID: sess.ID, NewSession: fresh}, nil) {
			return
		}

		end := func() {
			l.logger.Info("agent run finished",
				"session_id", sess.ID, "elapsed", time.Since(start))
			yield(Event{Kind: KindLoopEnded, SessionID: sess.ID}, nil)
		}

		history, err := l.store.Messages(ctx, sess.ID)
		if err != nil {
			if yield(Event{SessionID: sess.ID}, fmt.Errorf("loading history: %w", err)) {
				end()
			}
			return
		}

		msgs := make([]*ai.Message, 0, len(history)+1)
		for _, m := range history {
			msgs = append(msgs, m.AIMessage())
		}
		userMsg := ai.NewUserTextMessage(userMessage)
		msgs = append(msgs, userMsg)

		// pending accumulates this turn's messages; committed only on a
		// successful run end so an interrupted run changes nothing.
		pending := []*session.Message{{Role: session.RoleUser, Content: userMsg.Content}}

		refs := l.registry.Refs()
		callSeq := 0

		for turn := 0; turn < l.cfg.MaxTurns; turn++ {
			resp, gone, err := l.generate(ctx, sess.ID, msgs, refs, yield)
			if gone {
				return
			}
			if err != nil {
				l.logger.Error("model call failed",
					"session_id", sess.ID, "turn", turn, "error", err)
				if yield(Event{SessionID: sess.ID}, fmt.Errorf("model call: %w", err)) {
					end()
				}
				return
			}

			modelMsg := resp.Message
			toolReqs := resp.ToolRequests()

			if len(toolReqs) == 0 {
				// DONE: plain answer.
				msgs = append(msgs, modelMsg)
				pending = append(pending, &session.Message{Role: session.RoleModel, Content: modelMsg.Content})
				if !yield(Event{Kind: KindTurnEnded, SessionID: sess.ID, Message: modelMsg}, nil) {
					return
				}
				break
			}

			if turn == l.cfg.MaxTurns-1 {
				// Budget exhausted with tools still requested: do not
				// execute them. Commit only the text parts so the stored
				// history never ends on unanswered tool requests.
				l.logger.Warn("turn budget exhausted with pending tool calls",
					"session_id", sess.ID, "max_turns", l.cfg.MaxTurns, "pending_calls", len(toolReqs))
				if stripped := textOnlyMessage(modelMsg); stripped != nil {
					pending = append(pending, &session.Message{Role: session.RoleModel, Content: stripped.Content})
					if !yield(Event{Kind: KindTurnEnded, SessionID: sess.ID, Message: stripped}, nil) {
						return
					}
				}
				break
			}

			msgs = append(msgs, modelMsg)
			pending = append(pending, &session.Message{Role: session.RoleModel, Content: modelMsg.Content})
			if !yield(Event{Kind: KindTurnEnded, SessionID: sess.ID, Message: modelMsg}, nil) {
				return
			}

			// TOOL_EXECUTION: announce every call in issue order before any
			// of them runs, then execute concurrently and re-serialize at
			// the barrier.
			calls := make([]toolCall, len(toolReqs))
			for i, tr := range toolReqs {
				callSeq++
				id := tr.Ref
				if id == "" {
					id = fmt.Sprintf("call-%d", callSeq)
				}
				calls[i] = toolCall{id: id, req: tr}
				if !yield(Event{
					Kind:      KindToolStarted,
					SessionID: sess.ID,
					CallID:    id,
					ToolName:  tr.Name,
					Args:      tr.Input,
				}, nil) {
					return
				}
			}

			results := l.executeTools(ctx, calls)

			for i, call := range calls {
				res := results[i]
				var output any
				if res.err != nil {
					l.logger.Warn("tool call failed",
						"session_id", sess.ID, "tool", call.req.Name,
						"call_id", call.id, "error", res.err)
					if !yield(Event{
						Kind:      KindToolFailed,
						SessionID: sess.ID,
						CallID:    call.id,
						ToolName:  call.req.Name,
						Err:       res.err,
					}, nil) {
						return
					}
					// The failure goes back to the model as data so it can
					// recover (answer without the tool, or try another call).
					output = map[string]any{"error": res.err.Error()}
				} else {
					if !yield(Event{
						Kind:      KindToolEnded,
						SessionID: sess.ID,
						CallID:    call.id,
						ToolName:  call.req.Name,
						Result:    res.out,
					}, nil) {
						return
					}
					output = res.out
				}

				toolMsg := &ai.Message{
					Role: ai.RoleTool,
					Content: []*ai.Part{ai.NewToolResponsePart(&ai.ToolResponse{
						Name:   call.req.Name,
						Ref:    call.id,
						Output: output,
					})},
				}
				msgs = append(msgs, toolMsg)
				pending = append(pending, &session.Message{Role: session.RoleTool, Content: toolMsg.Content})
			}
			// Re-enter MODEL_TURN with the tool results in the transcript.
		}

		if ctx.Err() == nil {
			if err := l.store.AppendTurn(ctx, sess.ID, pending); err != nil {
				l.logger.Error("turn commit failed", "session_id", sess.ID, "error", err)
				if !yield(Event{SessionID: sess.ID}, fmt.Errorf("committing turn: %w", err)) {
					return
				}
			}
		}

		end()
	}
}

// generate performs one model turn: rate-limited, bounded retry with
// exponential backoff on transient errors, text streamed to the consumer as
// it arrives. A turn that already streamed text is not retried, otherwise
// the consumer would see the prefix twice.
func (l *Loop) generate(ctx context.Context, sessID uuid.UUID, msgs []*ai.Message, refs []ai.ToolRef, yield func(Event, error) bool) (resp *ai.ModelResponse, consumerGone bool, err error) {
	var lastErr error
	delay := l.cfg.Retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= l.cfg.Retry.MaxRetries; attempt++ {
		if l.limiter != nil {
			if err := l.limiter.Wait(ctx); err != nil {
				return nil, false, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		streamed := false
		gone := false
		opts := []ai.GenerateOption{
			ai.WithModelName(l.cfg.ModelName),
			ai.WithMessages(msgs...),
			ai.WithTools(refs...),
			ai.WithReturnToolRequests(true),
			ai.WithStreaming(func(_ context.Context, chunk *ai.ModelResponseChunk) error {
				text := chunk.Text()
				if text == "" {
					return nil
				}
				streamed = true
				if !yield(Event{Kind: KindTextFragment, SessionID: sessID, Text: text}, nil) {
					gone = true
					return errConsumerGone
				}
				return nil
			}),
		}
		if l.cfg.SystemPrompt != "" {
			opts = append(opts, ai.WithSystem(l.cfg.SystemPrompt))
		}

		callCtx, cancel := context.WithTimeout(ctx, l.cfg.ModelTimeout)
		resp, err := genkit.Generate(callCtx, l.g, opts...)
		cancel()

		if gone {
			return nil, true, nil
		}
		if err == nil {
			l.logger.Debug("model turn completed",
				"session_id", sessID, "attempts", attempt+1, "elapsed", time.Since(start))
			return resp, false, nil
		}

		lastErr = err

		// Retrying after streamed output would replay the prefix.
		if streamed || !retryableError(err) {
			return nil, false, err
		}
		if attempt == l.cfg.Retry.MaxRetries {
			break
		}

		l.logger.Debug("retrying model call",
			"session_id", sessID, "attempt", attempt+1, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return nil, false, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, l.cfg.Retry.MaxInterval)
		}
	}

	return nil, false, fmt.Errorf("model call after %d retries (elapsed: %v): %w",
		l.cfg.Retry.MaxRetries, time.Since(start), lastErr)
}

// executeTools runs one turn's tool calls concurrently and returns results
// indexed by call position. Failures are data in the result slice, never
// errors of the group.
func (l *Loop) executeTools(ctx context.Context, calls []toolCall) []toolResult {
	results := make([]toolResult, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			inv, err := l.registry.Lookup(call.req.Name)
			if err != nil {
				results[i] = toolResult{err: err}
				return nil
			}

			toolCtx, cancel := context.WithTimeout(gctx, l.cfg.ToolTimeout)
			defer cancel()

			out, err := inv.Invoke(toolCtx, call.req.Input)
			results[i] = toolResult{out: out, err: err}
			return nil
		})
	}
	// Goroutines only report through the results slice.
	_ = g.Wait()

	return results
}

// textOnlyMessage strips tool request parts from a model message. Returns
// nil when nothing but tool requests remain.
func textOnlyMessage(msg *ai.Message) *ai.Message {
	if msg == nil {
		return nil
	}
	parts := make([]*ai.Part, 0, len(msg.Content))
	for _, p := range msg.Content {
		if p.IsToolRequest() {
			continue
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return nil
	}
	return &ai.Message{Role: msg.Role, Content: parts}
}
