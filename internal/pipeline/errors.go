package pipeline

import (
	"errors"
	"fmt"

	"github.com/phrazzld/isplitter/internal/task"
)

var (
	// ErrTotalFailure means no unit of the request produced an output.
	ErrTotalFailure = errors.New("all work units failed")

	// ErrStageTimeout means the orchestrator stopped waiting for a unit.
	ErrStageTimeout = errors.New("stage timed out")

	// ErrInvalidRequest is returned for malformed GenerationRequests.
	ErrInvalidRequest = errors.New("invalid generation request")

	// ErrAlreadySettled is returned by a worker that finds its status record
	// already terminal, which happens on redelivery of finished work.
	ErrAlreadySettled = errors.New("task already settled")
)

// Stage names a pipeline stage.
type Stage string

const (
	StageGenerate Stage = "generate"
	StageUpload   Stage = "upload"
)

// failureSubmit marks a unit whose task could not be queued at all.
const failureSubmit task.FailureKind = "submit_failed"

// StageError reports the failure of one unit in one stage. It matches
// ErrTotalFailure, and ErrStageTimeout when the wait timed out.
type StageError struct {
	Stage    Stage
	UnitID   string
	Kind     task.FailureKind
	Message  string
	Attempts int
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed for unit %s (%s): %s", e.Stage, e.UnitID, e.Kind, e.Message)
}

// Unwrap supports errors.Is against ErrTotalFailure and ErrStageTimeout.
func (e *StageError) Unwrap() []error {
	errs := []error{ErrTotalFailure}
	if e.Timeout() {
		errs = append(errs, ErrStageTimeout)
	}
	return errs
}

// Timeout reports whether the orchestrator gave up waiting.
func (e *StageError) Timeout() bool {
	return e.Kind == task.FailureTimeout
}

func stageFailure(stage Stage, unitID string, f *task.Failure) *StageError {
	return &StageError{
		Stage:    stage,
		UnitID:   unitID,
		Kind:     f.Kind,
		Message:  f.Message,
		Attempts: f.Attempts,
	}
}
