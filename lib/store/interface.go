package store

import (
	"context"
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Backend is the generic interface for interacting with a key–value state
// backend. Keys are non-empty opaque strings, values are opaque byte payloads.
//
// "Key not found" is not an error: Get reports absence through its boolean
// return value. All operations only fail with a *Error carrying a RetCode
// (or a context error when the caller's context is done).
type Backend interface {
	// Get returns the value for a key. The boolean return value indicates
	// whether a value for the key was found.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Set inserts or updates a key–value pair. Repeated identical sets
	// converge to the same stored value.
	Set(ctx context.Context, key string, value []byte) (err error)
	// Delete deletes a key–value pair. Deleting an absent key is a no-op
	// success, not an error.
	Delete(ctx context.Context, key string) (err error)
}

// Prober is implemented by backends that support a lightweight reachability
// check distinct from a full state operation.
type Prober interface {
	// Probe reports whether the backend is currently reachable.
	Probe(ctx context.Context) error
}

// --------------------------------------------------------------------------
// Backend Kind
// --------------------------------------------------------------------------

// BackendKind identifies which backend implementation serves traffic.
// Exactly one kind is active at any instant per process.
type BackendKind uint8

const (
	// KindInMemory is the volatile in-process backend.
	KindInMemory BackendKind = iota
	// KindSidecar is the backend routed through the local sidecar agent.
	KindSidecar
)

// String returns the string representation of a BackendKind.
func (k BackendKind) String() string {
	switch k {
	case KindInMemory:
		return "inmemory"
	case KindSidecar:
		return "sidecar"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message
}

// Error implements the error interface.
func (e *Error) Error() string {
	errorCode := ""
	switch e.Code {
	case RetCUnavailable:
		errorCode = "Unavailable"
	case RetCBackendError:
		errorCode = "BackendError"
	default:
		errorCode = "Unknown"
	}

	return fmt.Sprintf("StateBackendError (code %s): %s", errorCode, e.Msg)
}

// NewError creates a new backend Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// NewErrorf creates a new backend Error with a formatted message.
func NewErrorf(code RetCode, format string, args ...interface{}) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// IsUnavailable reports whether err is a backend Error with RetCUnavailable.
// Transport-level failures (connection refused, timeout) carry this code and
// demote the active backend immediately.
func IsUnavailable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == RetCUnavailable
}

// IsBackendError reports whether err is a backend Error with RetCBackendError.
func IsBackendError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == RetCBackendError
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess      RetCode = iota // 0: Operation executed successfully.
	RetCUnavailable                 // 1: Backend not reachable (transport failure or timeout).
	RetCBackendError                // 2: Backend reported an internal fault.
)
