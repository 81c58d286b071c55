package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsCode(t *testing.T) {
	clone := Clone(ErrConflict, "fir already decided")
	assert.Equal(t, "fir already decided", clone.Message)
	assert.Equal(t, http.StatusConflict, clone.Status)
	assert.True(t, errors.Is(clone, ErrConflict))
	assert.False(t, errors.Is(clone, ErrForbidden))
	assert.Equal(t, "conflict", ErrConflict.Message)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(sql.ErrConnDone)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.ErrorIs(t, appErr, sql.ErrConnDone)
}

func TestFromErrorFindsWrapped(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", Clone(ErrNotFound, "fir not found"))
	appErr := FromError(wrapped)
	assert.Equal(t, ErrNotFound.Code, appErr.Code)
	assert.True(t, HasCode(wrapped, ErrNotFound))
}

func TestInternalHidesCauseFromMessage(t *testing.T) {
	appErr := Internal(errors.New("pq: connection refused"), "failed to load fir")
	assert.Equal(t, "failed to load fir", appErr.Message)
	assert.Contains(t, appErr.Error(), "connection refused")
}
