package ingest

import (
	"errors"
	"fmt"
)

// Error kinds. StageError wraps one of these so callers can match with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrRender     = errors.New("render error")
	ErrEmbed      = errors.New("embed error")
	ErrPersist    = errors.New("persist error")
)

// StageError records which stage and operation failed for an item.
type StageError struct {
	Stage Stage
	Op    string
	Err   error
}

// NewStageError wraps err for the given stage and operation.
func NewStageError(stage Stage, op string, err error) *StageError {
	return &StageError{Stage: stage, Op: op, Err: err}
}

func (e *StageError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Op, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinel for the error's stage.
func (e *StageError) Is(target error) bool {
	switch e.Stage {
	case StageRender:
		return target == ErrRender
	case StageEmbed:
		return target == ErrEmbed
	case StagePersist:
		return target == ErrPersist
	default:
		return false
	}
}
