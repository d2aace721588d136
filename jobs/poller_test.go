package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	agentcore "github.com/haowjy/meridian-agent-go"
)

// scriptedStatus replays a fixed status sequence, repeating the last
// element once exhausted.
func scriptedStatus(sequence ...Job) StatusFunc {
	var calls atomic.Int32
	return func(ctx context.Context, jobID string) (Job, error) {
		i := int(calls.Add(1)) - 1
		if i >= len(sequence) {
			i = len(sequence) - 1
		}
		job := sequence[i]
		job.JobID = jobID
		return job, nil
	}
}

func drainUpdates(t *testing.T, updates <-chan Update) []Update {
	t.Helper()
	var out []Update
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return out
			}
			out = append(out, u)
		case <-timeout:
			t.Fatal("timed out draining poll updates")
		}
	}
}

func TestPoll_ProgressesToSuccess(t *testing.T) {
	poller := NewPoller(scriptedStatus(
		Job{Status: StatusPending},
		Job{Status: StatusRunning, Progress: 0.5},
		Job{Status: StatusSucceeded, Progress: 1, ResultRef: "gen/42"},
	), WithInterval(time.Millisecond), WithTimeout(time.Second))

	updates, err := poller.Track("job-1").Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}

	got := drainUpdates(t, updates)
	if len(got) != 3 {
		t.Fatalf("expected 3 updates, got %d", len(got))
	}
	wantStatuses := []Status{StatusPending, StatusRunning, StatusSucceeded}
	for i, u := range got {
		if u.Err != nil {
			t.Fatalf("update %d carries error: %v", i, u.Err)
		}
		if u.Snapshot.Status != wantStatuses[i] {
			t.Errorf("update %d status %s, want %s", i, u.Snapshot.Status, wantStatuses[i])
		}
	}
	if got[2].Snapshot.ResultRef != "gen/42" {
		t.Errorf("final snapshot missing result reference: %+v", got[2].Snapshot)
	}
}

func TestPoll_FailedStatusIsTerminal(t *testing.T) {
	poller := NewPoller(scriptedStatus(
		Job{Status: StatusRunning},
		Job{Status: StatusFailed, ErrorMessage: "generation rejected"},
	), WithInterval(time.Millisecond), WithTimeout(time.Second))

	updates, err := poller.Track("job-2").Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}

	got := drainUpdates(t, updates)
	last := got[len(got)-1]
	if last.Err != nil {
		t.Fatalf("failed status should end the sequence without a poll error, got %v", last.Err)
	}
	if last.Snapshot.Status != StatusFailed || last.Snapshot.ErrorMessage != "generation rejected" {
		t.Errorf("unexpected final snapshot: %+v", last.Snapshot)
	}
}

func TestPoll_DeadlineAnchoredAtSubmission(t *testing.T) {
	var queries atomic.Int32
	status := func(ctx context.Context, jobID string) (Job, error) {
		queries.Add(1)
		return Job{JobID: jobID, Status: StatusRunning}, nil
	}

	poller := NewPoller(status, WithInterval(time.Millisecond), WithTimeout(50*time.Millisecond))
	// Submission happened well before the first poll.
	poller.now = func() time.Time { return time.Now().Add(-time.Second) }

	updates, err := poller.Track("job-3").Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}

	got := drainUpdates(t, updates)
	if len(got) != 1 || got[0].Err == nil {
		t.Fatalf("expected a single timeout update, got %+v", got)
	}
	if !agentcore.IsTimeout(got[0].Err) {
		t.Errorf("error %v should satisfy IsTimeout", got[0].Err)
	}
	if queries.Load() != 0 {
		t.Errorf("expired job should not be queried, saw %d queries", queries.Load())
	}
}

func TestPoll_TimesOutWhileRunning(t *testing.T) {
	poller := NewPoller(scriptedStatus(
		Job{Status: StatusRunning},
	), WithInterval(time.Millisecond), WithTimeout(25*time.Millisecond))

	updates, err := poller.Track("job-4").Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}

	got := drainUpdates(t, updates)
	last := got[len(got)-1]
	if last.Err == nil || !agentcore.IsTimeout(last.Err) {
		t.Fatalf("expected timeout error, got %+v", last)
	}
	for _, u := range got[:len(got)-1] {
		if u.Snapshot == nil || u.Snapshot.Status != StatusRunning {
			t.Errorf("pre-timeout update should be a running snapshot, got %+v", u)
		}
	}
}

func TestPoll_CallerAbort(t *testing.T) {
	poller := NewPoller(scriptedStatus(
		Job{Status: StatusRunning},
	), WithInterval(time.Millisecond), WithTimeout(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	updates, err := poller.Track("job-5").Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}

	// Let at least one snapshot through, then abort.
	<-updates
	cancel()

	got := drainUpdates(t, updates)
	last := got[len(got)-1]
	if last.Err == nil || !agentcore.IsCancelled(last.Err) {
		t.Fatalf("expected cancellation error, got %+v", last)
	}
}

func TestPoll_QueryErrorSurfaces(t *testing.T) {
	queryErr := errors.New("status endpoint returned 500")
	status := func(ctx context.Context, jobID string) (Job, error) {
		return Job{}, queryErr
	}

	poller := NewPoller(status, WithInterval(time.Millisecond), WithTimeout(time.Second))
	updates, err := poller.Track("job-6").Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}

	got := drainUpdates(t, updates)
	if len(got) != 1 || !errors.Is(got[0].Err, queryErr) {
		t.Fatalf("expected wrapped query error, got %+v", got)
	}
}

func TestPoll_NotRestartable(t *testing.T) {
	poller := NewPoller(scriptedStatus(
		Job{Status: StatusSucceeded},
	), WithInterval(time.Millisecond), WithTimeout(time.Second))

	handle := poller.Track("job-7")
	updates, err := handle.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	drainUpdates(t, updates)

	if _, err := handle.Poll(context.Background()); err == nil {
		t.Fatal("second Poll on the same handle should fail")
	}
}
