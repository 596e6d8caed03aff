package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookkeeper/internal/core"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", core.NewValidationError("title", "empty title"), http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("create: %w", core.ErrEmptyTitle), http.StatusBadRequest},
		{"money format", fmt.Errorf("%w: x", core.ErrInvalidMoneyFormat), http.StatusBadRequest},
		{"division by zero", core.ErrDivisionByZero, http.StatusBadRequest},
		{"forbidden", fmt.Errorf("expense 1: %w", core.ErrForbidden), http.StatusForbidden},
		{"not found", fmt.Errorf("expense 1: %w", core.ErrNotFound), http.StatusNotFound},
		{"not recurring", core.ErrNotRecurring, http.StatusNotFound},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestWriteError(t *testing.T) {
	t.Run("validation errors carry their field", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeError(rec, httptest.NewRequest(http.MethodPost, "/", nil), fmt.Errorf("wrap: %w", core.ErrEmptyTitle))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		body := decode[errorResponse](t, rec)
		assert.Equal(t, "title", body.Field)
		assert.Equal(t, "empty title", body.Error)
	})

	t.Run("internal errors are hidden", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("database is locked"))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "internal error", decode[errorResponse](t, rec).Error)
	})
}
