package http

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookkeeper/internal/cache"
	"bookkeeper/internal/core"
	"bookkeeper/internal/log"
	"bookkeeper/internal/services"
	"bookkeeper/internal/storage/memory"
)

var testNow = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T, rateLimit int) *Server {
	t.Helper()
	return newLoggedTestServer(t, rateLimit, log.Discard())
}

func newLoggedTestServer(t *testing.T, rateLimit int, logger *log.Logger) *Server {
	t.Helper()
	store := memory.New()
	horizons := cache.NewLRUCache[int64, core.Date](16, time.Hour)
	expenses := services.NewExpenseService(store, nil)
	recurringSvc := services.NewRecurringService(store, nil, horizons).
		WithClock(func() time.Time { return testNow })
	return NewServer(":0", expenses, recurringSvc, Options{
		Logger:    logger,
		RateLimit: rateLimit,
		Now:       func() time.Time { return testNow },
	})
}

// do sends a request as user 1 of group 1 unless headers override it.
func do(t *testing.T, s *Server, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderGroupID, "1")
	req.Header.Set(HeaderUserID, "1")
	for i := 0; i+1 < len(headers); i += 2 {
		if headers[i+1] == "" {
			req.Header.Del(headers[i])
			continue
		}
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const rentBody = `{"date":"2024-01-31","title":"Rent","receiver":"Landlord","categoryId":1,"sourceId":1,"sum":"1200.00"}`

// createRent stores expense 1 and turns it into monthly recurrence 1, which
// materializes occurrences 2 (2024-02-29) and 3 (2024-03-31).
func createRent(t *testing.T, s *Server) core.RecurringExpense {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/expense", rentBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/expense/recurring/1", `{"period":{"unit":"months","amount":1}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[core.RecurringExpense](t, rec)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 0)

	rec := do(t, s, http.MethodGet, "/healthz", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get(log.HeaderRequestID))
}

func TestCreateExpense(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		headers    []string
		wantStatus int
		wantField  string
	}{
		{
			name:       "charged to the payer",
			body:       `{"date":"2024-03-10","title":"Groceries","sum":"47.22"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "split by benefit weights",
			body:       `{"date":"2024-03-10","title":"Dinner","sum":"10.00","benefit":[{"userId":1,"weight":1},{"userId":2,"weight":2}]}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing group header",
			body:       `{"date":"2024-03-10","title":"Groceries","sum":"47.22"}`,
			headers:    []string{HeaderGroupID, ""},
			wantStatus: http.StatusBadRequest,
			wantField:  HeaderGroupID,
		},
		{
			name:       "invalid user header",
			body:       `{"date":"2024-03-10","title":"Groceries","sum":"47.22"}`,
			headers:    []string{HeaderUserID, "abc"},
			wantStatus: http.StatusBadRequest,
			wantField:  HeaderUserID,
		},
		{
			name:       "malformed sum",
			body:       `{"date":"2024-03-10","title":"Groceries","sum":"twelve"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			body:       `{"date":"2024-03-10","title":"Groceries","sum":"1.00","color":"red"}`,
			wantStatus: http.StatusBadRequest,
			wantField:  "body",
		},
		{
			name:       "empty title",
			body:       `{"date":"2024-03-10","title":"  ","sum":"1.00"}`,
			wantStatus: http.StatusBadRequest,
			wantField:  "title",
		},
		{
			name:       "division does not reconcile",
			body:       `{"date":"2024-03-10","title":"Groceries","sum":"10.00","division":[{"userId":1,"sum":"9.99","type":"expense"}]}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, 0)

			rec := do(t, s, http.MethodPost, "/api/expense", tt.body, tt.headers...)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusCreated {
				body := decode[errorResponse](t, rec)
				assert.NotEmpty(t, body.Error)
				if tt.wantField != "" {
					assert.Equal(t, tt.wantField, body.Field)
				}
				return
			}
			e := decode[core.Expense](t, rec)
			assert.Equal(t, int64(1), e.ID)
			assert.Equal(t, int64(1), e.GroupID)
			assert.Equal(t, core.ExpenseTypeExpense, e.Type)
			assert.NoError(t, core.ValidateDivision(e.SignedSum(), e.Division))
		})
	}
}

func TestExpenseGroupScoping(t *testing.T) {
	s := newTestServer(t, 0)
	require.Equal(t, http.StatusCreated,
		do(t, s, http.MethodPost, "/api/expense", `{"date":"2024-03-10","title":"Groceries","sum":"47.22"}`).Code)

	rec := do(t, s, http.MethodGet, "/api/expense/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "47.22", decode[core.Expense](t, rec).Sum.String())

	rec = do(t, s, http.MethodGet, "/api/expense/1", "", HeaderGroupID, "2")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decode[errorResponse](t, rec).Error)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/expense/42", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/expense/abc", "").Code)
	assert.Equal(t, http.StatusForbidden, do(t, s, http.MethodDelete, "/api/expense/1", "", HeaderGroupID, "2").Code)

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodDelete, "/api/expense/1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/expense/1", "").Code)
}

func TestRecurringLifecycle(t *testing.T) {
	s := newTestServer(t, 0)
	def := createRent(t, s)

	assert.Equal(t, int64(1), def.ID)
	assert.Equal(t, "2024-04-30", def.NextMissing.String())

	t.Run("month listing materializes lazily", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/expense/month?year=2024&month=2", "")
		require.Equal(t, http.StatusOK, rec.Code)
		feb := decode[core.MonthOverview](t, rec)
		require.Len(t, feb.Expenses, 1)
		assert.Equal(t, "2024-02-29", feb.Expenses[0].Date.String())
		assert.Equal(t, "1200.00", feb.Spent.String())

		rec = do(t, s, http.MethodGet, "/api/expense/month?year=2024&month=5", "")
		require.Equal(t, http.StatusOK, rec.Code)
		may := decode[core.MonthOverview](t, rec)
		require.Len(t, may.Expenses, 1)
		assert.Equal(t, "2024-05-31", may.Expenses[0].Date.String())
	})

	t.Run("month defaults to the current one", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/expense/month", "")
		require.Equal(t, http.StatusOK, rec.Code)
		mar := decode[core.MonthOverview](t, rec)
		assert.Equal(t, 2024, mar.Year)
		assert.Equal(t, 3, mar.Month)
		require.Len(t, mar.Expenses, 1)
		assert.Equal(t, int64(3), mar.Expenses[0].ID)
	})

	t.Run("single update only touches the addressed occurrence", func(t *testing.T) {
		rec := do(t, s, http.MethodPut, "/api/expense/recurring/2?target=single", `{"sum":"1250.00"}`)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		feb := decode[core.Expense](t, do(t, s, http.MethodGet, "/api/expense/2", ""))
		mar := decode[core.Expense](t, do(t, s, http.MethodGet, "/api/expense/3", ""))
		assert.Equal(t, "1250.00", feb.Sum.String())
		assert.Equal(t, "1200.00", mar.Sum.String())
	})

	t.Run("totals", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/expense/recurring/1/totals", "")
		require.Equal(t, http.StatusOK, rec.Code)
		totals := decode[core.RecurrenceTotals](t, rec)
		assert.Equal(t, "1200.00", totals.PerMonth.String())
		assert.Equal(t, "14400.00", totals.PerYear.String())
	})

	t.Run("delete after ends the recurrence", func(t *testing.T) {
		rec := do(t, s, http.MethodDelete, "/api/expense/recurring/3?target=after", "")
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/expense/3", "").Code)

		rec = do(t, s, http.MethodGet, "/api/expense/recurring", "")
		require.Equal(t, http.StatusOK, rec.Code)
		list := decode[[]recurringSummary](t, rec)
		require.Len(t, list, 1)
		assert.Equal(t, core.StateTerminated, list[0].State)
		require.NotNil(t, list[0].OccursUntil)
		assert.Equal(t, "2024-02-29", list[0].OccursUntil.String())
	})

	t.Run("plain delete of an occurrence removes only that occurrence", func(t *testing.T) {
		require.Equal(t, http.StatusNoContent, do(t, s, http.MethodDelete, "/api/expense/1", "").Code)

		assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/expense/1", "").Code)
		assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/expense/recurring/1", "").Code)
		// detached by the single update above
		assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/expense/2", "").Code)
	})
}

func TestRequestLoggerOnlyRecordsAccessLines(t *testing.T) {
	var buf bytes.Buffer
	s := newLoggedTestServer(t, 0, log.New(log.Config{Level: slog.LevelInfo, Format: "json", Output: &buf}))

	createRent(t, s)
	rec := do(t, s, http.MethodPut, "/api/expense/recurring/2?target=all", `{"title":"Rent and garage"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	// Domain records come from the services; the request logger only
	// carries one access line per request.
	var msgs []string
	lines := bufio.NewScanner(&buf)
	for lines.Scan() {
		var record struct {
			Msg string `json:"msg"`
		}
		require.NoError(t, json.Unmarshal(lines.Bytes(), &record))
		msgs = append(msgs, record.Msg)
	}
	assert.Equal(t, []string{"HTTP request completed", "HTTP request completed", "HTTP request completed"}, msgs)
}

func TestRecurringErrors(t *testing.T) {
	s := newTestServer(t, 0)
	createRent(t, s)
	require.Equal(t, http.StatusCreated,
		do(t, s, http.MethodPost, "/api/expense", `{"date":"2024-03-10","title":"Groceries","sum":"47.22"}`).Code)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		headers    []string
		wantStatus int
		wantField  string
	}{
		{"missing target", http.MethodPut, "/api/expense/recurring/2", `{"sum":"1.00"}`, nil, http.StatusBadRequest, "target"},
		{"bad target", http.MethodDelete, "/api/expense/recurring/2?target=some", "", nil, http.StatusBadRequest, "target"},
		{"empty changes", http.MethodPut, "/api/expense/recurring/2?target=all", `{}`, nil, http.StatusBadRequest, ""},
		{"not an occurrence", http.MethodPut, "/api/expense/recurring/4?target=all", `{"sum":"1.00"}`, nil, http.StatusNotFound, ""},
		{"unknown expense", http.MethodDelete, "/api/expense/recurring/99?target=single", "", nil, http.StatusNotFound, ""},
		{"other group", http.MethodDelete, "/api/expense/recurring/2?target=all", "", []string{HeaderGroupID, "2"}, http.StatusForbidden, ""},
		{"already recurring", http.MethodPost, "/api/expense/recurring/2", `{"period":{"unit":"months","amount":1}}`, nil, http.StatusBadRequest, "recurringExpenseId"},
		{"bad period unit", http.MethodPost, "/api/expense/recurring/4", `{"period":{"unit":"fortnights","amount":1}}`, nil, http.StatusBadRequest, ""},
		{"zero period amount", http.MethodPost, "/api/expense/recurring/4", `{"period":{"unit":"days","amount":0}}`, nil, http.StatusBadRequest, "period.amount"},
		{"first occurrence before the expense", http.MethodPost, "/api/expense/recurring/4", `{"period":{"unit":"months","amount":1},"firstOccurrence":"2024-02-10"}`, nil, http.StatusBadRequest, "firstOccurrence"},
		{"unknown recurrence", http.MethodGet, "/api/expense/recurring/7", "", nil, http.StatusNotFound, ""},
		{"month out of range", http.MethodGet, "/api/expense/month?year=2024&month=13", "", nil, http.StatusBadRequest, "month"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body, tt.headers...)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, decode[errorResponse](t, rec).Field)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, 2)

	body := `{"date":"2024-03-10","title":"Groceries","sum":"47.22"}`
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/api/expense", body).Code)
	}
	rec := do(t, s, http.MethodPost, "/api/expense", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// reads are never limited
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/expense/month", "").Code)
}
