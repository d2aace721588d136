// Package delegate fans one request out into independently executed
// subtasks under a bounded worker pool, with per-task priorities and
// timeouts, optional recursive dispatch under a shared budget, and a
// deterministic aggregator for the batch's mixed outcomes.
package delegate

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Priority orders task admission into the pool. Higher priorities are
// admitted first; ties keep batch order.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// State is a task's lifecycle phase. Transitions are strictly forward:
// pending → running → one terminal state, or pending → cancelled.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateTimedOut  State = "timedOut"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transition can occur from s.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimedOut, StateCancelled:
		return true
	}
	return false
}

func (s State) order() int {
	switch s {
	case StatePending:
		return 0
	case StateRunning:
		return 1
	default:
		return 2
	}
}

// Task is one delegated unit of work. Description becomes the sub-agent's
// instruction; WorkingContext, when set, is prepended as shared context.
// All state mutation happens through the scheduler.
type Task struct {
	ID             string
	Description    string
	Priority       Priority
	Timeout        time.Duration
	WorkingContext string

	mu     sync.Mutex
	state  State
	result string
	err    error
}

// NewTask creates a pending task with a generated ID and the given
// priority. A zero timeout means no per-task deadline.
func NewTask(description string, priority Priority, timeout time.Duration) *Task {
	return &Task{
		ID:          uuid.NewString(),
		Description: description,
		Priority:    priority,
		Timeout:     timeout,
		state:       StatePending,
	}
}

// State returns the task's current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Result returns the task's result content and error. Meaningful only
// once the task is terminal.
func (t *Task) Result() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// transition moves the task to next if that is a forward move; backward
// or repeated transitions are rejected so a timed-out task can never be
// resurrected by a late completion.
func (t *Task) transition(next State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() || next.order() <= t.state.order() {
		return false
	}
	t.state = next
	return true
}

// cancelIfPending short-circuits a task that was never admitted.
// Running tasks are cancelled through their own context instead, so
// the worker that owns them records the terminal state.
func (t *Task) cancelIfPending(err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StatePending {
		return false
	}
	t.state = StateCancelled
	t.err = err
	return true
}

func (t *Task) finish(next State, result string, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return false
	}
	t.state = next
	t.result = result
	t.err = err
	return true
}

// Outcome is an immutable snapshot of a terminal task, used by the
// aggregator and batch reports.
type Outcome struct {
	TaskID      string
	Description string
	Priority    Priority
	State       State
	Result      string
	Err         error
}

func (t *Task) outcome() Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Outcome{
		TaskID:      t.ID,
		Description: t.Description,
		Priority:    t.Priority,
		State:       t.state,
		Result:      t.result,
		Err:         t.err,
	}
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("task %s [%s]: %v", o.TaskID, o.State, o.Err)
	}
	return fmt.Sprintf("task %s [%s]", o.TaskID, o.State)
}
