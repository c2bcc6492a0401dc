package errors

import (
	"database/sql"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneMatchesTemplate(t *testing.T) {
	err := Clone(ErrSemesterLocked, "semester sem-1 is busy")

	assert.True(t, errors.Is(err, ErrSemesterLocked))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, http.StatusConflict, err.Status)
	assert.Equal(t, "semester sem-1 is busy", err.Message)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(sql.ErrConnDone)

	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.ErrorIs(t, appErr, sql.ErrConnDone)
	assert.Nil(t, FromError(nil))
}
