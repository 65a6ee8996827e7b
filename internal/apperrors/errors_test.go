package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageError(t *testing.T) {
	cause := Unavailable("generation", errors.New("dial tcp: connection refused"))
	err := fmt.Errorf("route: %w", NewStageError(StageClassify, cause))

	stage, ok := StageOf(err)
	assert.True(t, ok)
	assert.Equal(t, StageClassify, stage)
	assert.ErrorIs(t, err, ErrCollaboratorUnavailable)
	assert.Contains(t, err.Error(), "classify stage failed")
}

func TestStageOf_NoStage(t *testing.T) {
	_, ok := StageOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestConstructors(t *testing.T) {
	assert.ErrorIs(t, NotFound("query log", 7), ErrNotFound)
	assert.ErrorIs(t, Invalid("unknown intent %q", "x"), ErrInvalidInput)
	assert.ErrorIs(t, Integrity("already promoted"), ErrIntegrityViolation)
	assert.ErrorIs(t, ErrGenerationTimeout, ErrCollaboratorUnavailable)
	assert.Equal(t, ErrGenerationTimeout, Unavailable("generation", ErrGenerationTimeout))
}
