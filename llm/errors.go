package llm

import (
	"context"
	"errors"
)

// Error types for classifying model call failures.

// TransientError represents a temporary transport or provider error.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient.
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError represents a permanent error (bad request, auth, unparseable envelope).
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as fatal.
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// DeadlineError represents a stage deadline expiring before the provider
// answered. It is kept distinct from TransientError because the caller
// recovers from the two differently.
type DeadlineError struct {
	err error
}

func (e *DeadlineError) Error() string {
	return e.err.Error()
}

func (e *DeadlineError) Unwrap() error {
	return e.err
}

// NewDeadlineError wraps an error as a deadline expiry.
func NewDeadlineError(err error) error {
	return &DeadlineError{err: err}
}

// IsTransient returns true if the error is a temporary provider failure.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal returns true if the error is permanent.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// IsDeadline returns true if the error was caused by a deadline expiring.
func IsDeadline(err error) bool {
	var deadline *DeadlineError
	if errors.As(err, &deadline) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
