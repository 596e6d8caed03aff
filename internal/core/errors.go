package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMoneyFormat = errors.New("invalid money format")
	ErrDivisionByZero     = errors.New("division by zero")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrNotRecurring       = errors.New("expense is not a recurring occurrence")
)

// ValidationError is a user facing input problem, optionally tied to a field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

func NewValidationErrorf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is, or wraps, a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var (
	ErrInvalidDay       = NewValidationError("date", "invalid day")
	ErrInvalidMonth     = NewValidationError("date", "invalid month")
	ErrZeroDate         = NewValidationError("date", "date cannot be zero")
	ErrEmptyTitle       = NewValidationError("title", "empty title")
	ErrTitleTooLong     = NewValidationError("title", "title too long (max 200 characters)")
	ErrInvalidAmount    = NewValidationError("sum", "invalid amount")
	ErrAlreadyRecurring = NewValidationError("recurringExpenseId", "expense is already an occurrence of a recurrence")
)
