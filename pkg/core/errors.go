package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error represents a session-level error.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitempty"`
	Underlying error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrPermission     ErrorType = "permission_error"
	ErrConnection     ErrorType = "connection_error"
	ErrTimeout        ErrorType = "timeout_error"
	ErrTransport      ErrorType = "transport_error"
	ErrTool           ErrorType = "tool_error"
)

// Classification splits errors into retry policies. Permanent errors are
// surfaced immediately and never retried; transient errors are retried with
// exponential backoff up to the connection's retry ceiling.
type Classification string

const (
	ClassTransient Classification = "transient"
	ClassPermanent Classification = "permanent"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewPermissionError creates a permission error. Permission errors are
// permanent: retrying without a user gesture cannot succeed.
func NewPermissionError(message string) *Error {
	return &Error{
		Type:    ErrPermission,
		Message: message,
	}
}

// NewConnectionError creates a connection error wrapping an underlying cause.
func NewConnectionError(message string, underlying error) *Error {
	return &Error{
		Type:       ErrConnection,
		Message:    message,
		Underlying: underlying,
	}
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(message string) *Error {
	return &Error{
		Type:    ErrTimeout,
		Message: message,
	}
}

// NewTransportError creates a transport error wrapping an underlying cause.
func NewTransportError(message string, underlying error) *Error {
	return &Error{
		Type:       ErrTransport,
		Message:    message,
		Underlying: underlying,
	}
}

// NewToolError creates a tool execution error.
func NewToolError(message string) *Error {
	return &Error{
		Type:    ErrTool,
		Message: message,
	}
}

// Classify maps an error onto the retry policy. Permission denials are
// permanent; everything else (network, timeout, unknown) is transient.
func Classify(err error) Classification {
	if err == nil {
		return ClassTransient
	}
	var ce *Error
	if errors.As(err, &ce) {
		if ce.Type == ErrPermission || ce.Type == ErrInvalidRequest {
			return ClassPermanent
		}
		return ClassTransient
	}
	if IsPermissionDenied(err) {
		return ClassPermanent
	}
	return ClassTransient
}

// IsRetryable returns true if the error may succeed on retry.
func (e *Error) IsRetryable() bool {
	return Classify(e) == ClassTransient
}

// IsPermissionDenied reports whether err looks like a hardware or browser
// permission denial. Transport SDKs surface these with inconsistent types,
// so the message text is also matched.
func IsPermissionDenied(err error) bool {
	if err == nil {
		return false
	}
	var ce *Error
	if errors.As(err, &ce) && ce.Type == ErrPermission {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "notallowederror") ||
		strings.Contains(msg, "permission dismissed")
}

// IsCancellation reports whether err is a context cancellation, which is
// never surfaced as a session error.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
