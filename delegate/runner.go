package delegate

import (
	"context"
	"fmt"
	"strings"

	agentcore "github.com/haowjy/meridian-agent-go"
	"github.com/haowjy/meridian-agent-go/turn"
)

// ToolExecutor performs one tool call on behalf of a sub-agent and
// returns its result. Execution errors are reported through the
// result's IsError flag so the model can react; they never fail the
// task itself.
type ToolExecutor func(ctx context.Context, call agentcore.ToolCallRequest) agentcore.ToolResult

// TurnRunnerOption configures a turn-driven runner.
type TurnRunnerOption func(*turnRunner)

// WithRunnerTools offers tools to each sub-agent's turn, executed
// through the given executor.
func WithRunnerTools(executor ToolExecutor, tools ...*agentcore.Tool) TurnRunnerOption {
	return func(r *turnRunner) {
		r.executor = executor
		r.tools = tools
	}
}

// WithRunnerParams sets generation parameters for each sub-agent's turn.
func WithRunnerParams(params *agentcore.RequestParams) TurnRunnerOption {
	return func(r *turnRunner) { r.params = params }
}

type turnRunner struct {
	provider agentcore.Provider
	model    string
	tools    []*agentcore.Tool
	params   *agentcore.RequestParams
	executor ToolExecutor
}

// NewTurnRunner returns a Runner that drives one conversation turn per
// task against the given provider, feeding the task description (and
// working context, when present) as the opening message and returning
// the assistant's accumulated text.
func NewTurnRunner(provider agentcore.Provider, model string, opts ...TurnRunnerOption) Runner {
	r := &turnRunner{provider: provider, model: model}
	for _, opt := range opts {
		opt(r)
	}
	return r.run
}

func (r *turnRunner) run(ctx context.Context, task *Task) (string, error) {
	opts := []turn.Option{}
	if len(r.tools) > 0 {
		opts = append(opts, turn.WithTools(r.tools...))
	}
	if r.params != nil {
		opts = append(opts, turn.WithParams(r.params))
	}

	t := turn.New(r.provider, r.model, opts...)
	events, err := t.Run(ctx, taskPrompt(task))
	if err != nil {
		return "", err
	}

	var content strings.Builder
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				return content.String(), nil
			}
			switch {
			case ev.Err != nil:
				return "", ev.Err
			case ev.ContentDelta != nil:
				content.WriteString(ev.ContentDelta.Text)
			}
		case calls := <-t.PendingCalls():
			results := make([]agentcore.ToolResult, 0, len(calls))
			for _, call := range calls {
				results = append(results, r.executeCall(ctx, call))
			}
			if err := t.SupplyToolResults(ctx, results); err != nil {
				return "", err
			}
		}
	}
}

func (r *turnRunner) executeCall(ctx context.Context, call agentcore.ToolCallRequest) agentcore.ToolResult {
	if r.executor == nil {
		return agentcore.ToolResult{
			CallID:  call.ID,
			Content: fmt.Sprintf("tool %q is not available", call.Name),
			IsError: true,
		}
	}
	return r.executor(ctx, call)
}

func taskPrompt(task *Task) string {
	if task.WorkingContext == "" {
		return task.Description
	}
	return fmt.Sprintf("Context:\n%s\n\nTask:\n%s", task.WorkingContext, task.Description)
}
