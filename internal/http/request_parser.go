package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"bookkeeper/internal/core"
)

// Identity headers. Authentication happens in front of this service.
const (
	HeaderGroupID = "X-Group-ID"
	HeaderUserID  = "X-User-ID"
)

const maxBodyBytes = 1 << 20

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams extracts year and month from query parameters. Missing
// values default to now; malformed ones are an error.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{
		Year:  now.Year(),
		Month: int(now.Month()),
	}
	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 || y > 9999 {
			return MonthParams{}, core.NewValidationErrorf("year", "invalid year %q", v)
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return MonthParams{}, core.NewValidationErrorf("month", "invalid month %q", v)
		}
		params.Month = m
	}
	return params, nil
}

// parseHeaderID reads a positive id from a request header.
func parseHeaderID(r *http.Request, header string) (int64, error) {
	v := strings.TrimSpace(r.Header.Get(header))
	if v == "" {
		return 0, core.NewValidationErrorf(header, "missing %s header", header)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 1 {
		return 0, core.NewValidationErrorf(header, "invalid %s header %q", header, v)
	}
	return id, nil
}

func groupID(r *http.Request) (int64, error) {
	return parseHeaderID(r, HeaderGroupID)
}

// pathID reads the {id} route parameter.
func pathID(r *http.Request) (int64, error) {
	v := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 1 {
		return 0, core.NewValidationErrorf("id", "invalid id %q", v)
	}
	return id, nil
}

// parseTarget reads the mandatory ?target= selector.
func parseTarget(r *http.Request) (core.Target, error) {
	v := r.URL.Query().Get("target")
	if v == "" {
		return "", core.NewValidationError("target", "missing target: must be single, all or after")
	}
	return core.ParseTarget(v)
}

// decodeJSON decodes a single JSON object from the body into dst. Unknown
// fields are rejected.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if core.IsValidationError(err) || errors.Is(err, core.ErrInvalidMoneyFormat) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return core.NewValidationError("body", "empty request body")
		}
		return core.NewValidationErrorf("body", "invalid JSON: %v", err)
	}
	if dec.More() {
		return core.NewValidationError("body", "body must contain a single JSON object")
	}
	return nil
}

// expenseInput is the body of POST /api/expense.
type expenseInput struct {
	Date       core.Date           `json:"date"`
	Title      string              `json:"title"`
	Receiver   string              `json:"receiver"`
	CategoryID int64               `json:"categoryId"`
	SourceID   int64               `json:"sourceId"`
	Type       core.ExpenseType    `json:"type"`
	Sum        core.Money          `json:"sum"`
	Division   []core.DivisionItem `json:"division"`
	// Benefit weights split the sum when no division is given.
	Benefit []core.Share `json:"benefit"`
}

func (in expenseInput) toExpense(groupID, userID int64) core.Expense {
	typ := in.Type
	if typ == "" {
		typ = core.ExpenseTypeExpense
	}
	return core.Expense{
		GroupID:    groupID,
		UserID:     userID,
		Date:       in.Date,
		Title:      strings.TrimSpace(in.Title),
		Receiver:   strings.TrimSpace(in.Receiver),
		CategoryID: in.CategoryID,
		SourceID:   in.SourceID,
		Type:       typ,
		Sum:        in.Sum,
		Division:   in.Division,
	}
}

// recurringInput is the body of POST /api/expense/recurring/{id}.
type recurringInput struct {
	Period          core.RecurrencePeriod `json:"period"`
	FirstOccurrence core.Date             `json:"firstOccurrence"`
}

func (in recurringInput) validate() error {
	if err := in.Period.Validate(); err != nil {
		return fmt.Errorf("period: %w", err)
	}
	return nil
}
