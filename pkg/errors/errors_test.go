package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsIdentity(t *testing.T) {
	err := Clone(ErrNotAtStage, "Library is not the current stage")
	assert.True(t, errors.Is(err, ErrNotAtStage))
	assert.False(t, errors.Is(err, ErrAlreadyDecided))
	assert.Equal(t, http.StatusConflict, err.Status)
	assert.Equal(t, "Library is not the current stage", err.Message)
}

func TestIsStateConflict(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{ErrStaleState, true},
		{Clone(ErrNoDocuments, ""), true},
		{fmt.Errorf("submit: %w", ErrNoActiveDepartments), true},
		{Wrap(ErrAlreadyDecided, ErrInternal.Code, ErrInternal.Status, "wrapped"), true},
		{ErrValidation, false},
		{ErrConflict, false},
		{errors.New("boom"), false},
		{nil, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsStateConflict(tc.err), "%v", tc.err)
	}
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(errors.New("db down"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)

	typed := FromError(fmt.Errorf("ctx: %w", Clone(ErrForbidden, "nope")))
	assert.Equal(t, ErrForbidden.Code, typed.Code)
	assert.Nil(t, FromError(nil))
}
