// Package errors provides the semantic error taxonomy for the memory core.
// Errors are data-shaped: operations return them inside result values and
// callers branch on the code, never on control-flow exceptions.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents semantic error codes for consistent handling.
type ErrorCode string

const (
	// Edit conflicts
	ErrorCodeVersionMismatch ErrorCode = "VERSION_MISMATCH"

	// Target resolution failures
	ErrorCodeBlockNotFound   ErrorCode = "BLOCK_NOT_FOUND"
	ErrorCodeHeadingNotFound ErrorCode = "HEADING_NOT_FOUND"
	ErrorCodeSearchNotFound  ErrorCode = "SEARCH_NOT_FOUND"

	// Boundary validation
	ErrorCodeSchemaValidationFailed ErrorCode = "SCHEMA_VALIDATION_FAILED"

	// Budget and model registry
	ErrorCodeUnknownModel ErrorCode = "UNKNOWN_MODEL"

	// Storage
	ErrorCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrorCodeStorageError ErrorCode = "STORAGE_ERROR"
)

// CoreError is the unified error value carried on results.
type CoreError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the Go error interface.
func (e *CoreError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates a CoreError with the given code and message.
func New(code ErrorCode, message string) *CoreError {
	return &CoreError{Code: code, Message: message}
}

// Newf creates a CoreError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *CoreError {
	return &CoreError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches a key/value detail to the error.
func (e *CoreError) WithDetail(key string, value any) *CoreError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// NewVersionMismatch builds the conflict error a losing concurrent edit
// observes, carrying both versions and the last modifier context.
func NewVersionMismatch(expected, actual int, lastModifier string, lastModified string) *CoreError {
	return &CoreError{
		Code:    ErrorCodeVersionMismatch,
		Message: fmt.Sprintf("node version is %d, edit expected %d", actual, expected),
		Details: map[string]any{
			"expected_version": expected,
			"actual_version":   actual,
			"last_modifier":    lastModifier,
			"last_modified":    lastModified,
		},
	}
}

// NewSchemaValidation wraps a boundary validation failure; the wrapped error
// message identifies the first failing path.
func NewSchemaValidation(err error) *CoreError {
	return &CoreError{
		Code:    ErrorCodeSchemaValidationFailed,
		Message: err.Error(),
	}
}

// CodeOf extracts the semantic code from an error chain, or "" if the error
// is not a CoreError.
func CodeOf(err error) ErrorCode {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsTargetNotFound reports whether the error is any of the target resolution
// failures.
func IsTargetNotFound(err error) bool {
	switch CodeOf(err) {
	case ErrorCodeBlockNotFound, ErrorCodeHeadingNotFound, ErrorCodeSearchNotFound:
		return true
	}
	return false
}
