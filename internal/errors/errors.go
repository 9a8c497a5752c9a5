// Package errors defines the error codes shared by the store adapters, the
// synchronization core and the store server.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a class of failure independent of its message.
type ErrorCode string

const (
	ErrInternal ErrorCode = "INTERNAL_ERROR"

	// ErrStoreUnavailable is a transport-level failure. Callers skip the
	// cycle or surface it to the user; nothing retries automatically.
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"

	// ErrValidation rejects a record before it reaches any adapter.
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// ErrNotFound means the mutation target is absent from the mirror.
	ErrNotFound ErrorCode = "NOT_FOUND"

	ErrPermission ErrorCode = "PERMISSION_DENIED"
	ErrDuplicate  ErrorCode = "DUPLICATE"

	// ErrSessionClosed is returned by the update path after teardown.
	ErrSessionClosed ErrorCode = "SESSION_CLOSED"

	// ErrReentrantApply is returned when a change listener writes to the
	// mirror while it is being notified.
	ErrReentrantApply ErrorCode = "REENTRANT_APPLY"
)

// AppError carries a code, a human readable message and an optional cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is reports whether err, or anything it wraps, is an AppError with code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	for err != nil {
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// Code returns the code of the outermost AppError in err's chain, or
// ErrInternal when there is none.
func Code(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
