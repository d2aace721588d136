package delegate

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	agentcore "github.com/haowjy/meridian-agent-go"
	"github.com/haowjy/meridian-agent-go/providers/lorem"
)

func TestTurnRunner_CompletesTask(t *testing.T) {
	runner := NewTurnRunner(lorem.NewProvider(), "lorem-fast")
	task := NewTask("summarize the design", PriorityMedium, 0)

	result, err := runner(context.Background(), task)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	if result == "" {
		t.Error("expected non-empty result content")
	}
}

func TestTurnRunner_ExecutesToolCalls(t *testing.T) {
	tool, err := agentcore.NewFunctionTool("search_notes", "Search the shared notes", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
		},
	})
	if err != nil {
		t.Fatalf("NewFunctionTool: %v", err)
	}

	var executions atomic.Int32
	executor := func(ctx context.Context, call agentcore.ToolCallRequest) agentcore.ToolResult {
		executions.Add(1)
		if call.Name != "search_notes" {
			t.Errorf("unexpected tool %q", call.Name)
		}
		return agentcore.ToolResult{CallID: call.ID, Content: "3 matching notes"}
	}

	runner := NewTurnRunner(lorem.NewProvider(), "lorem-fast",
		WithRunnerTools(executor, tool))
	task := NewTask("find prior art in the notes", PriorityMedium, 0)

	result, err := runner(context.Background(), task)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	if executions.Load() == 0 {
		t.Error("expected the tool to be executed")
	}
	if result == "" {
		t.Error("expected content after the tool loop completed")
	}
}

func TestTurnRunner_WorkingContextIsPrepended(t *testing.T) {
	task := &Task{
		ID:             "ctx-task",
		Description:    "review the schema",
		WorkingContext: "The schema lives in migrations/",
		Priority:       PriorityMedium,
		state:          StatePending,
	}

	prompt := taskPrompt(task)
	if !strings.HasPrefix(prompt, "Context:\nThe schema lives in migrations/") {
		t.Errorf("working context missing from prompt:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Task:\nreview the schema") {
		t.Errorf("description missing from prompt:\n%s", prompt)
	}
}

func TestScheduler_WithTurnRunner(t *testing.T) {
	runner := NewTurnRunner(lorem.NewProvider(), "lorem-fast")
	tasks := []*Task{
		NewTask("outline chapter one", PriorityHigh, 5*time.Second),
		NewTask("outline chapter two", PriorityMedium, 5*time.Second),
		NewTask("outline chapter three", PriorityLow, 5*time.Second),
	}

	d, err := NewScheduler(runner).Dispatch(context.Background(), &Batch{
		Tasks:               tasks,
		Mode:                ModeParallel,
		MaxConcurrentAgents: 2,
		WaitForCompletion:   true,
		AggregateResults:    true,
		Strategy:            StrategyMerge,
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	for _, task := range tasks {
		if got := task.State(); got != StateSucceeded {
			t.Errorf("task %q state %s", task.Description, got)
		}
	}
	if d.Aggregated() == "" {
		t.Error("expected merged aggregation output")
	}
}
