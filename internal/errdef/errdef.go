// Package errdef defines the error taxonomy shared by every component.
//
// Components return *Error values across their boundaries instead of
// throwing; the dispatcher turns them into structured tool responses and
// the protocol server never sees a raw internal fault.
package errdef

import (
	"context"
	"errors"
	"fmt"
)

// Code is a stable string identifying an error kind.
type Code string

const (
	CodeValidation          Code = "ValidationError"
	CodeNotFound            Code = "NotFound"
	CodeStorageUnavailable  Code = "StorageUnavailable"
	CodeConstraintViolation Code = "ConstraintViolation"
	CodeTimeout             Code = "Timeout"
	CodeCancelled           Code = "Cancelled"
	CodeProtocol            Code = "ProtocolError"
	CodeInternal            Code = "Internal"
)

// Error is a tagged error with a stable code, a human-readable message,
// optional structured data, and a recovery hint suitable for display.
type Error struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithData attaches a structured field to the error and returns it.
func (e *Error) WithData(key string, value any) *Error {
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	e.Data[key] = value
	return e
}

// WithCause records the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// Validation reports a caller-provided argument failing schema or range
// checks. field is the offending field path (e.g. "filters.minImportance").
func Validation(field, message string) *Error {
	e := &Error{
		Code:    CodeValidation,
		Message: message,
		Hint:    "check the tool input against its schema",
	}
	if field != "" {
		e = e.WithData("field", field)
	}
	return e
}

// NotFound reports an absent id or named resource.
func NotFound(what string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", what),
		Hint:    "verify the id exists; it may have been pruned by optimize",
	}
}

// StorageUnavailable reports a failed open/connect/close.
func StorageUnavailable(op string, err error) *Error {
	return (&Error{
		Code:    CodeStorageUnavailable,
		Message: fmt.Sprintf("storage %s failed", op),
		Hint:    "check DATABASE_PATH permissions and free disk space",
	}).WithCause(err)
}

// Constraint reports a uniqueness or foreign-key violation.
func Constraint(message string, err error) *Error {
	return (&Error{
		Code:    CodeConstraintViolation,
		Message: message,
		Hint:    "the referenced row may not exist or the value is already taken",
	}).WithCause(err)
}

// Internal wraps any other fault. Callers log these with the cause.
func Internal(err error) *Error {
	return (&Error{
		Code:    CodeInternal,
		Message: "internal error",
		Hint:    "retry; if it persists, run with --debug and report the log",
	}).WithCause(err)
}

// Protocol reports malformed framing or an unknown method.
func Protocol(message string) *Error {
	return &Error{
		Code:    CodeProtocol,
		Message: message,
		Hint:    "each request must be a single JSON object with method and id",
	}
}

// FromContext maps a context error to Timeout or Cancelled.
func FromContext(err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return (&Error{
			Code:    CodeTimeout,
			Message: "operation timed out",
			Hint:    "retry with a smaller limit or a longer deadline",
		}).WithCause(err)
	default:
		return (&Error{
			Code:    CodeCancelled,
			Message: "operation cancelled",
			Hint:    "the request was cancelled by the caller",
		}).WithCause(err)
	}
}

// As extracts an *Error from an error chain. Anything unrecognized is
// wrapped as Internal so a caller always gets a tagged value.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return FromContext(err)
	}
	return Internal(err)
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	e := As(err)
	return e != nil && e.Code == code
}
