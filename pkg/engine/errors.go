package engine

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorClass represents the classification of a step failure. It feeds the journal,
// the metrics and the message shown to the user; retrying is always the user's call.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on retry.
	// Examples: network timeouts, temporary service unavailability.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassThrottled indicates rate limiting or quota exhaustion.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassConflict indicates a resource state conflict.
	// Examples: concurrent provider operations, a resource locked by another action.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: invalid credentials, permission denied, rejected input.
	ErrorClassPermanent ErrorClass = "permanent"
)

var (
	// ErrAborted is returned by a Prompter when the user interrupts input
	// (Ctrl+C, Esc or end of input).
	ErrAborted = errors.New("aborted by user")

	// ErrCancelled is returned by Orchestrator.Run after a user cancellation. The
	// partial context has been persisted; callers treat it as a normal exit.
	ErrCancelled = errors.New("setup cancelled")

	// ErrRunDeclined is returned when the user declines both retry and continuation
	// after a step failure.
	ErrRunDeclined = errors.New("setup stopped after step failure")

	// ErrPrerequisite wraps failed prerequisite checks.
	ErrPrerequisite = errors.New("prerequisite check failed")
)

// StepError is a classified step failure.
type StepError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Step is the step that failed.
	Step StepID `json:"step"`

	// Attempt is the 1-based attempt number.
	Attempt int `json:"attempt"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("[%s] step %s (attempt %d): %v", e.Class, e.Step, e.Attempt, e.Err)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *StepError) Unwrap() error {
	return e.Err
}

// temporary is implemented by transport errors that know whether they can be retried.
type temporary interface {
	Temporary() bool
}

// statusCoder is implemented by HTTP API errors.
type statusCoder interface {
	StatusCode() int
}

// Classify inspects err and returns its class.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		switch code := sc.StatusCode(); {
		case code == 429:
			return ErrorClassThrottled
		case code == 409 || code == 423:
			return ErrorClassConflict
		case code >= 500:
			return ErrorClassTransient
		default:
			return ErrorClassPermanent
		}
	}

	var tmp temporary
	if errors.As(err, &tmp) && tmp.Temporary() {
		return ErrorClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTransient
	}

	if strings.Contains(strings.ToLower(err.Error()), "conflicting operations") {
		return ErrorClassConflict
	}

	return ErrorClassPermanent
}

// IsRetryable returns true if the error is expected to clear on its own.
func IsRetryable(err error) bool {
	switch Classify(err) {
	case ErrorClassTransient, ErrorClassThrottled, ErrorClassConflict:
		return true
	default:
		return false
	}
}
