package realtime

import (
	"errors"
	"fmt"
)

// ErrorCode represents a categorized error type.
type ErrorCode int

const (
	CodeUnknown ErrorCode = iota

	// CodeConnection means the transport could not be started
	// (network unreachable, auth rejected by the hub).
	CodeConnection

	// CodeNotConnected means an operation that requires an established
	// connection was attempted while not connected.
	CodeNotConnected

	// CodeValidation means a hub invocation was given empty or otherwise
	// unusable arguments.
	CodeValidation

	// CodeSerialization means a frame or event payload could not be decoded.
	CodeSerialization

	// CodeCachePatch means an optimistic cache patch could not be applied.
	// These errors are recovered inside the Syncer and never propagate.
	CodeCachePatch

	// CodeDisconnected means the connection was lost mid-operation.
	CodeDisconnected

	// CodeTimeout means an operation exceeded its deadline.
	CodeTimeout
)

// String returns the string representation of an ErrorCode.
func (c ErrorCode) String() string {
	switch c {
	case CodeConnection:
		return "connection_error"
	case CodeNotConnected:
		return "not_connected"
	case CodeValidation:
		return "validation_error"
	case CodeSerialization:
		return "serialization_error"
	case CodeCachePatch:
		return "cache_patch_error"
	case CodeDisconnected:
		return "disconnected"
	case CodeTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("unknown_code_%d", c)
	}
}

// SyncError is a structured error with code and context.
type SyncError struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s (wrapped: %v)", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Unwrap support.
func (e *SyncError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is support; two SyncErrors match on equal codes.
func (e *SyncError) Is(target error) bool {
	t, ok := target.(*SyncError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new SyncError with the given code and message.
func NewError(code ErrorCode, message string) *SyncError {
	return &SyncError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with a SyncError.
func WrapError(code ErrorCode, message string, err error) *SyncError {
	return &SyncError{
		Code:    code,
		Message: message,
		Wrapped: err,
	}
}

// IsConnectionError reports whether err is a connection-related error.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var se *SyncError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == CodeConnection || se.Code == CodeDisconnected || se.Code == CodeTimeout
}

// IsValidationError reports whether err was caused by bad invocation arguments.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var se *SyncError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == CodeValidation
}
