package delegate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	agentcore "github.com/haowjy/meridian-agent-go"
)

// ExecutionMode controls how a batch's tasks are scheduled.
type ExecutionMode string

const (
	// ModeParallel runs up to MaxConcurrentAgents tasks at once.
	ModeParallel ExecutionMode = "parallel"
	// ModeSequential forces the pool to a single slot regardless of
	// MaxConcurrentAgents.
	ModeSequential ExecutionMode = "sequential"
)

// DefaultMaxConcurrentAgents bounds the pool when a batch leaves
// MaxConcurrentAgents unset.
const DefaultMaxConcurrentAgents = 4

// Batch is one delegation request. It is immutable once dispatched
// except for the lifecycle state of its member tasks.
type Batch struct {
	Tasks               []*Task
	Mode                ExecutionMode
	MaxConcurrentAgents int
	WaitForCompletion   bool
	AggregateResults    bool
	Strategy            Strategy
}

func (b *Batch) poolSize() int {
	if b.Mode == ModeSequential {
		return 1
	}
	n := b.MaxConcurrentAgents
	if n < 1 {
		n = DefaultMaxConcurrentAgents
	}
	if n > len(b.Tasks) {
		n = len(b.Tasks)
	}
	return n
}

// Runner executes one task and returns its result content. The context
// carries the task's deadline and the batch-level abort.
type Runner func(ctx context.Context, task *Task) (string, error)

// Budget is a concurrency ceiling shared across nesting levels of
// recursive dispatch. Each level still applies its own pool size; the
// budget caps the total number of running tasks across all levels.
//
// A task that dispatches a nested batch keeps holding its own slot
// while it waits, so size the budget larger than the deepest expected
// nesting chain or the nested tasks will starve.
type Budget struct {
	sem chan struct{}
}

// NewBudget creates a shared budget of n running-task slots.
func NewBudget(n int) *Budget {
	if n < 1 {
		n = 1
	}
	return &Budget{sem: make(chan struct{}, n)}
}

func (b *Budget) acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case b.sem <- struct{}{}:
		return nil
	}
}

func (b *Budget) release() { <-b.sem }

// Scheduler admits batches of tasks into a bounded worker pool.
type Scheduler struct {
	runner Runner
	budget *Budget
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithBudget attaches a shared budget, typically passed down through
// recursively dispatched schedulers to cap total concurrency.
func WithBudget(budget *Budget) SchedulerOption {
	return func(s *Scheduler) { s.budget = budget }
}

// NewScheduler creates a scheduler that executes tasks with runner.
func NewScheduler(runner Runner, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{runner: runner}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle tracks one dispatched task. It is safe to await from multiple
// goroutines.
type Handle struct {
	task      *Task
	done      chan struct{}
	closeOnce sync.Once
}

func (h *Handle) finish() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Task returns the underlying task for state inspection.
func (h *Handle) Task() *Task { return h.task }

// Done is closed when the task reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Await blocks until the task is terminal or ctx expires, then returns
// the task's result and error.
func (h *Handle) Await(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-h.done:
		return h.task.Result()
	}
}

// Dispatch is the live view of one dispatched batch.
type Dispatch struct {
	batch      *Batch
	handles    []*Handle
	aggregated string
}

// Handles returns per-task handles in the batch's original order.
func (d *Dispatch) Handles() []*Handle { return d.handles }

// WaitAll blocks until every task in the batch is terminal or ctx
// expires.
func (d *Dispatch) WaitAll(ctx context.Context) error {
	for _, h := range d.handles {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.done:
		}
	}
	return nil
}

// Outcomes snapshots every task in batch order. Call after WaitAll for
// a stable terminal view.
func (d *Dispatch) Outcomes() []Outcome {
	out := make([]Outcome, 0, len(d.handles))
	for _, h := range d.handles {
		out = append(out, h.task.outcome())
	}
	return out
}

// Aggregated returns the aggregator output for a batch dispatched with
// WaitForCompletion and AggregateResults set.
func (d *Dispatch) Aggregated() string { return d.aggregated }

// Dispatch admits the batch's tasks into the pool, ordered by priority
// and then by batch position. With WaitForCompletion set it blocks until
// the batch is terminal and, with AggregateResults, fills Aggregated;
// otherwise it returns immediately with live handles.
//
// Cancelling ctx aborts the whole batch: running tasks are cancelled
// through their own contexts and queued tasks go straight to cancelled.
// A per-task timeout cancels only that task.
func (s *Scheduler) Dispatch(ctx context.Context, batch *Batch) (*Dispatch, error) {
	if len(batch.Tasks) == 0 {
		return nil, errors.New("batch has no tasks")
	}
	for _, task := range batch.Tasks {
		if task.ID == "" {
			return nil, fmt.Errorf("task %q has no ID", task.Description)
		}
		if task.State() != StatePending {
			return nil, fmt.Errorf("task %s already dispatched (state %s)", task.ID, task.State())
		}
	}

	d := &Dispatch{
		batch:   batch,
		handles: make([]*Handle, len(batch.Tasks)),
	}
	byTask := make(map[*Task]*Handle, len(batch.Tasks))
	for i, task := range batch.Tasks {
		h := &Handle{task: task, done: make(chan struct{})}
		d.handles[i] = h
		byTask[task] = h
	}

	ordered := admissionOrder(batch.Tasks)
	slots := make(chan struct{}, batch.poolSize())

	go func() {
		for _, task := range ordered {
			select {
			case <-ctx.Done():
				s.cancelRemaining(ordered, byTask, ctx.Err())
				return
			case slots <- struct{}{}:
			}
			if s.budget != nil {
				if err := s.budget.acquire(ctx); err != nil {
					<-slots
					s.cancelRemaining(ordered, byTask, err)
					return
				}
			}
			h := byTask[task]
			go func(task *Task, h *Handle) {
				defer func() {
					if s.budget != nil {
						s.budget.release()
					}
					<-slots
				}()
				s.runTask(ctx, task)
				h.finish()
			}(task, h)
		}
	}()

	if batch.WaitForCompletion {
		if err := d.WaitAll(ctx); err != nil {
			return nil, err
		}
		if batch.AggregateResults {
			aggregated, err := Aggregate(d.Outcomes(), batch.Strategy, nil)
			if err != nil {
				return nil, err
			}
			d.aggregated = aggregated
		}
	}
	return d, nil
}

// admissionOrder sorts by priority rank, stable within equal priority.
func admissionOrder(tasks []*Task) []*Task {
	ordered := make([]*Task, len(tasks))
	copy(ordered, tasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority.rank() < ordered[j].Priority.rank()
	})
	return ordered
}

func (s *Scheduler) cancelRemaining(ordered []*Task, byTask map[*Task]*Handle, cause error) {
	for _, task := range ordered {
		if task.cancelIfPending(&agentcore.TaskError{TaskID: task.ID, State: string(StateCancelled), Err: cause}) {
			byTask[task].finish()
		}
	}
}

func (s *Scheduler) runTask(ctx context.Context, task *Task) {
	if !task.transition(StateRunning) {
		return
	}

	taskCtx := ctx
	cancel := context.CancelFunc(func() {})
	if task.Timeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, task.Timeout)
	}
	defer cancel()

	result, err := s.runner(taskCtx, task)
	switch {
	case err == nil:
		task.finish(StateSucceeded, result, nil)
	case ctx.Err() != nil:
		// Batch-level abort.
		task.finish(StateCancelled, "", &agentcore.TaskError{TaskID: task.ID, State: string(StateCancelled), Err: err})
	case taskCtx.Err() != nil || agentcore.IsTimeout(err):
		task.finish(StateTimedOut, "", &agentcore.TaskError{TaskID: task.ID, State: string(StateTimedOut), Err: err})
	default:
		task.finish(StateFailed, "", &agentcore.TaskError{TaskID: task.ID, State: string(StateFailed), Err: err})
	}
}
