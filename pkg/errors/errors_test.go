package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("solve: %w", Wrap(errors.New("slot 3"), ErrSolutionIntegrity.Code, ErrSolutionIntegrity.Status, "integrity"))

	got := FromError(wrapped)
	assert.Equal(t, "SOLUTION_INTEGRITY", got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.Status)
	assert.Equal(t, "integrity: slot 3", got.Error())
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	got := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, got.Code)
	assert.ErrorContains(t, got, "boom")
	assert.Nil(t, FromError(nil))
}

func TestClone(t *testing.T) {
	c := Clone(ErrNotFound, "run not found")
	assert.Equal(t, "run not found", c.Message)
	assert.Equal(t, "resource not found", ErrNotFound.Message)
	assert.Nil(t, Clone(nil, "x"))
}
