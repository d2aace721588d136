// Package jobs implements the submit-now, complete-later pattern for
// backend operations that return a job handle immediately and finish
// out of band. A Poller repeatedly queries job status on a fixed
// interval until a terminal status is observed or the job's deadline
// expires. The deadline is anchored at submission time, not at the
// first poll.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	agentcore "github.com/haowjy/meridian-agent-go"
)

// Status is a job's backend-reported lifecycle phase.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further status change can occur.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Job is one status snapshot of a long-running backend operation.
type Job struct {
	JobID        string
	Status       Status
	Progress     float64 // 0..1 where reported, 0 otherwise
	ResultRef    string  // reference to the result, set on success
	ErrorMessage string  // backend failure detail, set on failure
}

// Update is one element of a poll sequence: a snapshot, or the error
// that ended polling. Exactly one field is set.
type Update struct {
	Snapshot *Job
	Err      error
}

// StatusFunc issues one status query for a job.
type StatusFunc func(ctx context.Context, jobID string) (Job, error)

const (
	// DefaultInterval between status queries.
	DefaultInterval = 2 * time.Second
	// DefaultTimeout from submission to forced failure.
	DefaultTimeout = 5 * time.Minute
)

// Poller polls job status through a StatusFunc. One Poller may track
// any number of jobs.
type Poller struct {
	status   StatusFunc
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the wait between consecutive status queries.
func WithInterval(interval time.Duration) Option {
	return func(p *Poller) { p.interval = interval }
}

// WithTimeout sets the per-job deadline, measured from submission.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Poller) { p.timeout = timeout }
}

// NewPoller creates a poller over the given status query.
func NewPoller(status StatusFunc, opts ...Option) *Poller {
	p := &Poller{
		status:   status,
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle tracks one submitted job. Its deadline clock starts at Track
// time, so queueing delay before the first Poll counts against the
// timeout.
type Handle struct {
	poller    *Poller
	jobID     string
	submitted time.Time

	mu      sync.Mutex
	started bool
}

// Track registers a job submitted now and returns its polling handle.
func (p *Poller) Track(jobID string) *Handle {
	return &Handle{poller: p, jobID: jobID, submitted: p.now()}
}

// Poll starts the status sequence for the tracked job. The returned
// channel carries one Update per query; it closes after a terminal
// snapshot, or after a final Update whose Err explains why polling
// stopped (deadline exceeded, query failure, or caller abort). A handle
// may be polled once.
func (h *Handle) Poll(ctx context.Context) (<-chan Update, error) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return nil, fmt.Errorf("job %s is already being polled", h.jobID)
	}
	h.started = true
	h.mu.Unlock()

	updates := make(chan Update, 1)
	go h.loop(ctx, updates)
	return updates, nil
}

func (h *Handle) loop(ctx context.Context, updates chan<- Update) {
	defer close(updates)

	p := h.poller
	deadline := h.submitted.Add(p.timeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for {
		if err := ctx.Err(); err != nil {
			updates <- Update{Err: h.pollError(err)}
			return
		}

		job, err := p.status(ctx, h.jobID)
		if err != nil {
			updates <- Update{Err: h.pollError(err)}
			return
		}

		select {
		case updates <- Update{Snapshot: &job}:
		case <-ctx.Done():
			updates <- Update{Err: h.pollError(ctx.Err())}
			return
		}

		if job.Status.Terminal() {
			return
		}

		select {
		case <-time.After(p.interval):
		case <-ctx.Done():
			updates <- Update{Err: h.pollError(ctx.Err())}
			return
		}
	}
}

// pollError normalizes loop-ending errors: deadline expiry maps onto
// the shared timeout sentinel so callers can test it uniformly.
func (h *Handle) pollError(err error) error {
	if agentcore.IsTimeout(err) {
		return fmt.Errorf("job %s did not finish within %s of submission: %w",
			h.jobID, h.poller.timeout, agentcore.ErrTimeout)
	}
	if agentcore.IsCancelled(err) {
		return fmt.Errorf("polling job %s: %w", h.jobID, agentcore.ErrCancelled)
	}
	return fmt.Errorf("querying job %s: %w", h.jobID, err)
}
