package vdf

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownInstance is returned when an instance id is not known to the
	// engine.
	ErrUnknownInstance = errors.New("unknown vdf instance")

	// ErrNotReady is returned by Verify when the instance has not reached
	// Completed yet. It is a defined "not ready" result, not a failure.
	ErrNotReady = errors.New("instance has not completed yet")

	// ErrQueueFull is returned by Submit when the pending queue is at
	// capacity. Callers should retry with backoff.
	ErrQueueFull = errors.New("pending queue at capacity")

	// ErrShutdown is returned for operations on a stopped engine.
	ErrShutdown = errors.New("engine has shut down")
)

// InvalidParameterError indicates a request that was rejected synchronously
// at submission: T out of bounds, empty input, malformed weights, unknown
// backend kind, and similar.
type InvalidParameterError struct {
	Field string
	Msg   string
}

func (e InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Field, e.Msg)
}

// NewInvalidParameterError constructs an InvalidParameterError for the given
// field.
func NewInvalidParameterError(field, format string, args ...interface{}) error {
	return InvalidParameterError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// IsInvalidParameterError returns whether the input error is an
// InvalidParameterError.
func IsInvalidParameterError(err error) bool {
	var target InvalidParameterError
	return errors.As(err, &target)
}

// InvalidTransitionError indicates an operation that would violate the
// instance state machine, e.g. cancelling an instance that is already
// computing.
type InvalidTransitionError struct {
	ID   InstanceID
	From Status
	To   Status
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("instance %s: illegal transition %s -> %s", e.ID, e.From, e.To)
}

// IsInvalidTransitionError returns whether the input error is an
// InvalidTransitionError.
func IsInvalidTransitionError(err error) bool {
	var target InvalidTransitionError
	return errors.As(err, &target)
}

// ComputationFailureError wraps the final error of an instance that
// exhausted its retry budget. It is distinct from a verification failure,
// which is a total false result rather than an error.
type ComputationFailureError struct {
	ID       InstanceID
	Attempts int
	Err      error
}

func (e ComputationFailureError) Error() string {
	return fmt.Sprintf("instance %s: computation failed after %d attempts: %v", e.ID, e.Attempts, e.Err)
}

func (e ComputationFailureError) Unwrap() error {
	return e.Err
}

// IsComputationFailureError returns whether the input error is a
// ComputationFailureError.
func IsComputationFailureError(err error) bool {
	var target ComputationFailureError
	return errors.As(err, &target)
}
