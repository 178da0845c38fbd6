package types

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode represents a unified error kind across the module.
type ErrorCode string

// Generation error codes
const (
	ErrConfig           ErrorCode = "CONFIG_ERROR"
	ErrValidation       ErrorCode = "VALIDATION_ERROR"
	ErrProviderHTTP     ErrorCode = "PROVIDER_HTTP_ERROR"
	ErrProviderResponse ErrorCode = "PROVIDER_RESPONSE_ERROR"
	ErrJobFailed        ErrorCode = "JOB_FAILED"
	ErrTimedOut         ErrorCode = "TIMED_OUT"
	ErrCancelled        ErrorCode = "CANCELLED"
	ErrNetwork          ErrorCode = "NETWORK_ERROR"
)

// Service error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// AsError extracts a *Error from the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// NewCancelledError builds a CANCELLED error from a context error.
func NewCancelledError(cause error) *Error {
	msg := "request cancelled"
	if errors.Is(cause, context.DeadlineExceeded) {
		msg = "request deadline exceeded"
	}
	return NewError(ErrCancelled, msg).WithCause(cause)
}

// FromContext returns a CANCELLED error if ctx is done, nil otherwise.
func FromContext(ctx context.Context) *Error {
	if err := ctx.Err(); err != nil {
		return NewCancelledError(err)
	}
	return nil
}
