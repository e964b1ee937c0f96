package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapToHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no error", nil, http.StatusOK},
		{"wrapped unauthorized", fmt.Errorf("resolve: %w", ErrUnauthorized), http.StatusUnauthorized},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"room not found", fmt.Errorf("room r1: %w", ErrNotFound), http.StatusNotFound},
		{"store down", ErrStoreUnavailable, http.StatusServiceUnavailable},
		{"bad room", fmt.Errorf("name: %w", ErrInvalidRoom), http.StatusBadRequest},
		{"duplicate", ErrAlreadyExists, http.StatusConflict},
		{"anything else", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, MapToHTTPStatus(tt.err))
		})
	}
}

func TestCloseReason(t *testing.T) {
	req := require.New(t)

	code, _ := CloseReason(nil)
	req.Equal(CloseNormal, code)

	code, text := CloseReason(fmt.Errorf("history: %w", ErrStoreUnavailable))
	req.Equal(CloseTryAgainLater, code)
	req.Equal("history unavailable", text)

	code, _ = CloseReason(ErrRateLimited)
	req.Equal(ClosePolicy, code)

	code, _ = CloseReason(fmt.Errorf("unexpected"))
	req.Equal(CloseInternalError, code)
}
