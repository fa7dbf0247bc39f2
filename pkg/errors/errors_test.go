package errors

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorWrapsUnknownAsInternal(t *testing.T) {
	err := FromError(sql.ErrConnDone)
	assert.Equal(t, ErrInternal.Code, err.Code)
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestIsMatchesByCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("approve: %w", Clone(ErrAlreadyPaid, "installment inst-1 already paid"))
	assert.True(t, Is(err, ErrAlreadyPaid))
	assert.False(t, Is(err, ErrNotFound))
	assert.True(t, IsConflict(err))
	assert.True(t, IsConflict(ErrConflict))
	assert.False(t, IsConflict(ErrForbidden))
	assert.False(t, Is(nil, ErrNotFound))
}

func TestCloneKeepsKind(t *testing.T) {
	clone := Clone(ErrForbidden, "not your installment")
	assert.Equal(t, http.StatusForbidden, clone.Status)
	assert.Equal(t, "not your installment", clone.Error())
	assert.Equal(t, "forbidden", ErrForbidden.Message)
}
