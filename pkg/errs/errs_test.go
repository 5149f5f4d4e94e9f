package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("exchange: %w", ErrInsufficientPoints)

	assert.Equal(t, KindInsufficientPoints, KindOf(wrapped))
	assert.Equal(t, KindInternal, KindOf(errors.New("db down")))
	assert.True(t, Is(wrapped, KindInsufficientPoints))
	assert.False(t, Is(wrapped, KindCapacityFull))
}

func TestErrorsIs_MatchesByKind(t *testing.T) {
	custom := New(KindNotFound, "活动不存在")

	assert.ErrorIs(t, custom, New(KindNotFound, "另一条提示"))
	assert.NotErrorIs(t, custom, ErrForbidden)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindAuth, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindConflictRetryExhausted, http.StatusConflict},
		{KindTimeout, http.StatusGatewayTimeout},
		{KindInternal, http.StatusInternalServerError},
		{KindCapacityFull, http.StatusBadRequest},
		{KindValidation, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.kind, "x").HTTPStatus())
		})
	}
}
