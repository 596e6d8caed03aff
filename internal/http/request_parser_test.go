package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookkeeper/internal/core"
)

func TestParseMonthParams(t *testing.T) {
	now := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		query     string
		want      MonthParams
		wantField string
	}{
		{"defaults to now", "", MonthParams{Year: 2024, Month: 3}, ""},
		{"explicit", "year=2023&month=12", MonthParams{Year: 2023, Month: 12}, ""},
		{"only month", "month=1", MonthParams{Year: 2024, Month: 1}, ""},
		{"blank values default", "year=%20&month=", MonthParams{Year: 2024, Month: 3}, ""},
		{"month zero", "month=0", MonthParams{}, "month"},
		{"month thirteen", "month=13", MonthParams{}, "month"},
		{"month not a number", "month=march", MonthParams{}, "month"},
		{"year out of range", "year=10000", MonthParams{}, "year"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, err := url.ParseQuery(tt.query)
			require.NoError(t, err)

			got, err := ParseMonthParams(query, now)

			if tt.wantField != "" {
				var ve *core.ValidationError
				require.True(t, errors.As(err, &ve), "got %v", err)
				assert.Equal(t, tt.wantField, ve.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPathID(t *testing.T) {
	tests := []struct {
		value   string
		want    int64
		wantErr bool
	}{
		{"12", 12, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", tt.value)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			got, err := pathID(req)

			if tt.wantErr {
				assert.True(t, core.IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTarget(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/?target=AFTER", nil)
	target, err := parseTarget(req)
	require.NoError(t, err)
	assert.Equal(t, core.TargetAfter, target)

	_, err = parseTarget(httptest.NewRequest(http.MethodPut, "/", nil))
	assert.True(t, core.IsValidationError(err))
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantErr   bool
		wantField string
	}{
		{"valid", `{"title":"Rent","sum":"12.30"}`, false, ""},
		{"empty body", ``, true, "body"},
		{"syntax error", `{"title":`, true, "body"},
		{"unknown field", `{"color":"red"}`, true, "body"},
		{"two objects", `{"title":"a"} {"title":"b"}`, true, "body"},
		{"bad date keeps its field", `{"date":"2024-02-30"}`, true, "date"},
		{"bad money", `{"sum":"abc"}`, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var in expenseInput

			err := decodeJSON(req, &in)

			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "Rent", in.Title)
				assert.Equal(t, int64(1230), in.Sum.Cents())
				return
			}
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, statusFor(err))
			if tt.wantField != "" {
				var ve *core.ValidationError
				require.True(t, errors.As(err, &ve), "got %v", err)
				assert.Equal(t, tt.wantField, ve.Field)
			}
		})
	}
}

func TestExpenseInputDefaults(t *testing.T) {
	in := expenseInput{Title: "  Rent ", Receiver: " Landlord"}

	e := in.toExpense(3, 7)

	assert.Equal(t, int64(3), e.GroupID)
	assert.Equal(t, int64(7), e.UserID)
	assert.Equal(t, "Rent", e.Title)
	assert.Equal(t, "Landlord", e.Receiver)
	assert.Equal(t, core.ExpenseTypeExpense, e.Type)
}
