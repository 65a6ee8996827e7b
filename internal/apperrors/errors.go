// Package apperrors holds the error kinds that cross component boundaries.
// Malformed model output and unrecognized query shapes are recovered inside
// their components and never appear here.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidInput            = errors.New("invalid input")
	ErrIntegrityViolation      = errors.New("data integrity violation")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrGenerationTimeout       = fmt.Errorf("generation timed out: %w", ErrCollaboratorUnavailable)
)

// Stage names the orchestrator step that failed.
type Stage string

const (
	StageDecompose Stage = "decompose"
	StageClassify  Stage = "classify"
	StageAnswer    Stage = "answer"
	StageLog       Stage = "log"
)

type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func NewStageError(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// StageOf reports the failed stage carried by err, if any.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

func NotFound(entity string, id any) error {
	return fmt.Errorf("%s %v: %w", entity, id, ErrNotFound)
}

func Invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidInput)
}

func Integrity(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrIntegrityViolation)
}

func Unavailable(collaborator string, err error) error {
	if errors.Is(err, ErrCollaboratorUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", collaborator, ErrCollaboratorUnavailable, err)
}
