package errors

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(sql.ErrConnDone)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.ErrorIs(t, appErr, sql.ErrConnDone)
}

func TestClonedErrorMatchesOriginal(t *testing.T) {
	cloned := Clone(ErrNotFound, "enrollment not found")
	wrapped := fmt.Errorf("load: %w", cloned)

	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.NotErrorIs(t, wrapped, ErrConflict)
	assert.True(t, HasCode(wrapped, ErrNotFound.Code))
	assert.Equal(t, "enrollment not found", FromError(wrapped).Message)
}
