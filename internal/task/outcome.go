package task

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// FailureKind classifies why a task did not produce a value.
type FailureKind string

const (
	// FailureTransient means every allowed attempt failed with a retryable error.
	FailureTransient FailureKind = "transient"
	// FailurePermanent means the handler reported an error that must not be retried.
	FailurePermanent FailureKind = "permanent"
	// FailureSoftTimeLimit means the last attempt was interrupted at the soft limit.
	FailureSoftTimeLimit FailureKind = "soft_time_limit"
	// FailureHardTimeLimit means the worker abandoned the attempt at the hard limit.
	FailureHardTimeLimit FailureKind = "hard_time_limit"
	// FailureTimeout means the waiter stopped waiting. The task may still finish.
	FailureTimeout FailureKind = "timeout"
	// FailureCanceled means the waiter's context ended before a result arrived.
	FailureCanceled FailureKind = "canceled"
)

// Failure describes a task that did not succeed.
type Failure struct {
	Kind     FailureKind
	Message  string
	Attempts int
}

// Error implements error so a Failure can be wrapped when a caller chooses to.
func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Outcome is what a waiter receives for a task: either a value or a Failure.
// Outcomes are values, never panics or returned errors.
type Outcome struct {
	TaskID  uuid.UUID
	Value   []byte
	Failure *Failure
}

// OK reports whether the task produced a value.
func (o Outcome) OK() bool {
	return o.Failure == nil
}

func succeeded(id uuid.UUID, value []byte) Outcome {
	return Outcome{TaskID: id, Value: value}
}

func failed(id uuid.UUID, kind FailureKind, msg string, attempts int) Outcome {
	return Outcome{TaskID: id, Failure: &Failure{Kind: kind, Message: msg, Attempts: attempts}}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
