package agentcore

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
// These can be checked with errors.Is().
var (
	// ErrTransport indicates a network or backend failure mid-exchange.
	ErrTransport = errors.New("agentcore: transport failure")

	// ErrTimeout indicates a task or job exceeded its deadline.
	ErrTimeout = errors.New("agentcore: deadline exceeded")

	// ErrCancelled indicates a caller-initiated abort.
	ErrCancelled = errors.New("agentcore: cancelled")

	// ErrInvalidModel indicates the requested model is not supported by
	// the selected provider.
	ErrInvalidModel = errors.New("agentcore: invalid or unsupported model")

	// ErrInvalidAPIKey indicates the API key is missing or unauthorized.
	ErrInvalidAPIKey = errors.New("agentcore: invalid API key")

	// ErrInvalidRequest indicates the request parameters are invalid.
	ErrInvalidRequest = errors.New("agentcore: invalid request")

	// ErrRateLimited indicates the provider's rate limit has been exceeded.
	ErrRateLimited = errors.New("agentcore: rate limit exceeded")

	// ErrProviderUnavailable indicates the provider is down or unreachable.
	ErrProviderUnavailable = errors.New("agentcore: provider unavailable")
)

// TransportError represents a network or backend failure while talking to
// a provider. It terminates the current turn and is surfaced to the
// immediate caller; retry policy belongs above the turn.
type TransportError struct {
	Provider   string // Provider name
	StatusCode int    // HTTP status code, if applicable
	Message    string // Error detail from the provider
	Retryable  bool   // Whether this failure is potentially retryable
	Err        error  // Wrapped cause
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider '%s' transport error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider '%s' transport error: %s", e.Provider, e.Message)
}

func (e *TransportError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrTransport
}

// ModelError represents an error related to model validation or support.
type ModelError struct {
	Model    string // The model that was requested
	Provider string // The provider name
	Reason   string // Human-readable explanation
	Err      error  // Wrapped error (usually ErrInvalidModel)
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model '%s' for provider '%s': %s (%v)", e.Model, e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("model '%s' for provider '%s': %s", e.Model, e.Provider, e.Reason)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// TaskError records why a delegated task ended in a non-succeeded terminal
// state. The scheduler attaches one per failed, timed-out, or cancelled
// task; sibling tasks are unaffected.
type TaskError struct {
	TaskID string
	State  string // terminal state: "failed", "timedOut", "cancelled"
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s %s: %v", e.TaskID, e.State, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// IsTimeout checks whether an error represents an exceeded deadline,
// including context.DeadlineExceeded from a task's timeout context.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IsCancelled checks whether an error represents a caller-initiated abort.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// IsRetryable checks if an error is potentially retryable. Returns true
// for rate limits, temporary unavailability, and transport errors flagged
// retryable. Timeouts and cancellations are not retryable here: the
// caller decides whether to re-dispatch expired work.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Retryable
	}

	if errors.Is(err, ErrRateLimited) {
		return true
	}

	return errors.Is(err, ErrProviderUnavailable)
}
