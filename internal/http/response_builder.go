package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"bookkeeper/internal/core"
	"bookkeeper/internal/log"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case core.IsValidationError(err),
		errors.Is(err, core.ErrInvalidMoneyFormat),
		errors.Is(err, core.ErrDivisionByZero):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrNotRecurring):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Internal errors are logged and hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorResponse{Error: err.Error()}

	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		body = errorResponse{Error: ve.Msg, Field: ve.Field}
	case status == http.StatusForbidden:
		body.Error = "forbidden"
	case status == http.StatusInternalServerError:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.NewFields().WithError(err).WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "").ToSlice()...)
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}
