// Package turn drives one request/response exchange with a backend,
// including the tool loop: stream events to the caller, collect tool-call
// requests, suspend until the caller supplies matching results, then
// re-issue a follow-up request with the extended history. A Turn runs
// until natural completion, abort, or an unrecoverable error; it is not
// restartable. Construct a new Turn for the next exchange.
package turn

import (
	"context"
	"fmt"
	"strings"
	"sync"

	agentcore "github.com/haowjy/meridian-agent-go"
)

// Turn owns one exchange. It mutates its own message history only from
// the loop goroutine; concurrently running turns share nothing.
type Turn struct {
	provider agentcore.Provider
	model    string
	tools    []*agentcore.Tool
	params   *agentcore.RequestParams
	history  []agentcore.Message

	events  chan agentcore.StreamEvent
	pending chan []agentcore.ToolCallRequest
	results chan []agentcore.ToolResult

	mu      sync.Mutex
	started bool
}

// Option configures a Turn.
type Option func(*Turn)

// WithTools offers tools to the model for this turn.
func WithTools(tools ...*agentcore.Tool) Option {
	return func(t *Turn) { t.tools = tools }
}

// WithParams sets generation parameters, including the system prompt.
// Configuration is threaded through here explicitly; the turn reads no
// process-wide state.
func WithParams(params *agentcore.RequestParams) Option {
	return func(t *Turn) { t.params = params }
}

// WithHistory seeds the turn with prior conversation messages.
func WithHistory(messages []agentcore.Message) Option {
	return func(t *Turn) {
		t.history = make([]agentcore.Message, len(messages))
		copy(t.history, messages)
	}
}

// New creates a Turn against the given provider and model.
func New(provider agentcore.Provider, model string, opts ...Option) *Turn {
	t := &Turn{
		provider: provider,
		model:    model,
		events:   make(chan agentcore.StreamEvent, 10),
		pending:  make(chan []agentcore.ToolCallRequest, 1),
		results:  make(chan []agentcore.ToolResult, 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run starts the exchange with the given user content and returns the
// turn's event stream. The channel closes when the turn terminates by
// completion, abort, or error. Run may be called once.
func (t *Turn) Run(ctx context.Context, initialContent string) (<-chan agentcore.StreamEvent, error) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return nil, fmt.Errorf("turn already started; construct a new Turn to retry")
	}
	t.started = true
	t.mu.Unlock()

	t.history = append(t.history, agentcore.NewUserMessage(initialContent))

	go t.loop(ctx)

	return t.events, nil
}

// PendingCalls delivers the complete set of tool calls requested in one
// exchange, at the moment the turn suspends for their results. Each
// receive must be answered with one SupplyToolResults call.
func (t *Turn) PendingCalls() <-chan []agentcore.ToolCallRequest {
	return t.pending
}

// SupplyToolResults hands the caller's tool results to a suspended turn.
// Results are keyed to pending calls by CallID; the turn resumes with a
// follow-up request once they arrive.
func (t *Turn) SupplyToolResults(ctx context.Context, results []agentcore.ToolResult) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case t.results <- results:
		return nil
	}
}

// Messages returns a snapshot of the accumulated history. Intended for
// inspection after the event channel has closed.
func (t *Turn) Messages() []agentcore.Message {
	out := make([]agentcore.Message, len(t.history))
	copy(out, t.history)
	return out
}

func (t *Turn) loop(ctx context.Context) {
	defer close(t.events)

	for {
		// Abort check before the send suspension point.
		if ctx.Err() != nil {
			return
		}

		req := &agentcore.Request{
			Model:    t.model,
			Messages: t.history,
			Tools:    t.tools,
			Params:   t.params,
		}

		stream, err := t.provider.Stream(ctx, req)
		if err != nil {
			t.forward(ctx, agentcore.StreamEvent{Err: err})
			return
		}

		var calls []agentcore.ToolCallRequest
		var content strings.Builder

		for ev := range stream {
			switch {
			case ev.Err != nil:
				// Transport errors terminate the turn; retry policy
				// belongs to the caller.
				t.forward(ctx, ev)
				return
			case ev.ToolCall != nil:
				calls = append(calls, *ev.ToolCall)
			case ev.ContentDelta != nil:
				content.WriteString(ev.ContentDelta.Text)
			}
			if !t.forward(ctx, ev) {
				return
			}
		}

		if len(calls) == 0 {
			// Natural completion: Done was already forwarded.
			if content.Len() > 0 {
				t.history = append(t.history, agentcore.Message{
					Role:    agentcore.RoleAssistant,
					Content: content.String(),
				})
			}
			return
		}

		// Announce the full call set, then suspend until the caller
		// supplies results or aborts. An unclaimed announcement from a
		// prior exchange is stale once its results arrived; drop it so
		// callers that only watch the event stream never wedge the loop.
		select {
		case <-t.pending:
		default:
		}
		select {
		case <-ctx.Done():
			return
		case t.pending <- calls:
		}
		var results []agentcore.ToolResult
		select {
		case <-ctx.Done():
			return
		case results = <-t.results:
		}

		t.history = append(t.history,
			agentcore.Message{
				Role:      agentcore.RoleAssistant,
				Content:   content.String(),
				ToolCalls: calls,
			},
			agentcore.NewToolResultMessage(matchResults(calls, results)),
		)
	}
}

// forward delivers one event to the caller, giving up on abort so an
// abandoned turn never leaks its loop goroutine.
func (t *Turn) forward(ctx context.Context, ev agentcore.StreamEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case t.events <- ev:
		return true
	}
}

// matchResults orders supplied results by pending call and fills in an
// error result for any call the caller left unanswered, so the follow-up
// request always covers every requested call.
func matchResults(calls []agentcore.ToolCallRequest, results []agentcore.ToolResult) []agentcore.ToolResult {
	byID := make(map[string]agentcore.ToolResult, len(results))
	for _, r := range results {
		byID[r.CallID] = r
	}

	out := make([]agentcore.ToolResult, 0, len(calls))
	for _, call := range calls {
		if r, ok := byID[call.ID]; ok {
			out = append(out, r)
			continue
		}
		out = append(out, agentcore.ToolResult{
			CallID:  call.ID,
			Content: fmt.Sprintf("no result supplied for tool call %s (%s)", call.ID, call.Name),
			IsError: true,
		})
	}
	return out
}
