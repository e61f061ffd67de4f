package sparc

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain failures.
type ErrorKind string

const (
	KindStorage         ErrorKind = "storage"
	KindValidation      ErrorKind = "validation"
	KindSessionNotFound ErrorKind = "session_not_found"
	KindCorruption      ErrorKind = "corruption"
	KindPhaseExecution  ErrorKind = "phase_execution"
)

// Error is the domain error type. Match kinds with errors.Is against
// the Err* sentinels below.
type Error struct {
	Kind    ErrorKind
	Message string
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels compare by kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Sentinels for errors.Is. Message is empty so they match on kind alone.
var (
	ErrStorage         = &Error{Kind: KindStorage}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrSessionNotFound = &Error{Kind: KindSessionNotFound}
	ErrCorruption      = &Error{Kind: KindCorruption}
	ErrPhaseExecution  = &Error{Kind: KindPhaseExecution}
)

// NewError builds an *Error of the given kind.
func NewError(kind ErrorKind, message, details string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Details: details, Err: cause}
}

// PhaseExecutionFailed wraps the cause of a failed phase run.
func PhaseExecutionFailed(cause error) *Error {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &Error{Kind: KindPhaseExecution, Message: "phase execution failed", Details: details, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
