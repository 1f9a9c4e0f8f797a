// File: api/errors.go
// Package api defines the error taxonomy of hioload-vram.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "fmt"

// Common errors used across the library.
var (
	// ErrOutOfMemory indicates host allocation or record creation failed.
	ErrOutOfMemory = fmt.Errorf("out of memory")
	// ErrOutOfSpace indicates the pool has no room even after eviction.
	ErrOutOfSpace = fmt.Errorf("pool out of space")
	// ErrInvalidSize indicates a zero or malformed requested size.
	ErrInvalidSize = fmt.Errorf("invalid size")
	// ErrNotPinned indicates an offset query on an unpinned object.
	ErrNotPinned = fmt.Errorf("buffer object not pinned")
	// ErrBusy indicates a contended reservation; the caller may retry.
	ErrBusy = fmt.Errorf("resource busy")
	// ErrPrecondition indicates an operation ran against a counter state
	// it requires, such as unpin at pin_count zero.
	ErrPrecondition = fmt.Errorf("precondition violated")
	// ErrUnsupported indicates an unrecognized pool or memory type.
	ErrUnsupported = fmt.Errorf("operation not supported")
	// ErrDeviceClosed indicates the device memory manager was torn down.
	ErrDeviceClosed = fmt.Errorf("device closed")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeOutOfMemory
	ErrCodeOutOfSpace
	ErrCodeInvalidSize
	ErrCodeNotPinned
	ErrCodeBusy
	ErrCodePrecondition
	ErrCodeUnsupported
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.cause }

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithCause attaches an underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}
