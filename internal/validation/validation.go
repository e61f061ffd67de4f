// Package validation provides field validators that collect structured
// errors instead of failing on the first problem.
package validation

import (
	"fmt"
	"strings"

	"github.com/HendryAvila/zenyth/internal/sparc"
)

// ErrorCode identifies the kind of validation failure.
type ErrorCode string

const (
	FieldRequired      ErrorCode = "FIELD_REQUIRED"
	FieldEmpty         ErrorCode = "FIELD_EMPTY"
	FieldTooShort      ErrorCode = "FIELD_TOO_SHORT"
	FieldTooLong       ErrorCode = "FIELD_TOO_LONG"
	FieldInvalidFormat ErrorCode = "FIELD_INVALID_FORMAT"
	FieldInvalidType   ErrorCode = "FIELD_INVALID_TYPE"
)

// FieldError describes one failed check.
type FieldError struct {
	Field   string         `json:"field"`
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *FieldError) Error() string { return e.Message }

// NewFieldError builds a FieldError, defaulting the message to "field: CODE".
func NewFieldError(field string, code ErrorCode, message string, ctx map[string]any) *FieldError {
	if message == "" {
		message = fmt.Sprintf("%s: %s", field, code)
	}
	return &FieldError{Field: field, Code: code, Message: message, Context: ctx}
}

// Result accumulates field errors.
type Result struct {
	Errors []*FieldError
}

// Add records a new error. An empty message gets the default format.
func (r *Result) Add(field string, code ErrorCode, message string, ctx map[string]any) {
	r.Errors = append(r.Errors, NewFieldError(field, code, message, ctx))
}

// Append records an existing error; nil is ignored.
func (r *Result) Append(e *FieldError) {
	if e != nil {
		r.Errors = append(r.Errors, e)
	}
}

// Valid reports whether no errors were recorded.
func (r *Result) Valid() bool { return len(r.Errors) == 0 }

// Err returns a validation-kind *sparc.Error joining every message
// with "; ", or nil when valid.
func (r *Result) Err() error {
	if r.Valid() {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return sparc.NewError(sparc.KindValidation, strings.Join(msgs, "; "), "", nil)
}

// Required fails when the value is unset (empty string).
func Required(value, field string) *FieldError {
	if value == "" {
		return NewFieldError(field, FieldRequired, field+" is required", nil)
	}
	return nil
}

// NotEmpty fails when the value is empty or whitespace-only.
func NotEmpty(value, field string) *FieldError {
	if strings.TrimSpace(value) == "" {
		return NewFieldError(field, FieldEmpty, field+" cannot be empty", nil)
	}
	return nil
}

// MinLength compares the trimmed length against min.
func MinLength(value, field string, min int) *FieldError {
	actual := len(strings.TrimSpace(value))
	if actual < min {
		return NewFieldError(field, FieldTooShort,
			fmt.Sprintf("%s must be at least %d characters", field, min),
			map[string]any{"min_length": min, "actual_length": actual})
	}
	return nil
}

// MaxLength compares the raw length against max.
func MaxLength(value, field string, max int) *FieldError {
	actual := len(value)
	if actual > max {
		return NewFieldError(field, FieldTooLong,
			fmt.Sprintf("%s must be at most %d characters", field, max),
			map[string]any{"max_length": max, "actual_length": actual})
	}
	return nil
}
