// Package apperr defines the error taxonomy shared by the orchestrator,
// the invite coordinator and the HTTP API.
package apperr

import "errors"

// Code is a machine-readable error class.
type Code string

const (
	CodeValidation   Code = "validation"
	CodeInvalidState Code = "invalid_state"
	CodeNotFound     Code = "not_found"
	CodeInternal     Code = "internal"
)

// Error is a domain error carrying a Code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrValidation   = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrInvalidState = &Error{Code: CodeInvalidState, Message: "invalid state"}
	ErrNotFound     = &Error{Code: CodeNotFound, Message: "not found"}
)

// Validation returns a validation error with the given message.
func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Message: message}
}

// InvalidState returns an invalid-state error with the given message.
func InvalidState(message string) *Error {
	return &Error{Code: CodeInvalidState, Message: message}
}

// NotFound returns a not-found error with the given message.
func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
