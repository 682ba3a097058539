// Package types defines error types
package types

import (
	"errors"
	"fmt"
	"net"
)

// Predefined errors
var (
	// ErrInvalidConfig indicates a configuration value that cannot be served with
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrQueueClosed indicates the queue no longer accepts or yields items
	ErrQueueClosed = errors.New("queue is closed")

	// ErrPoolRunning indicates the worker pool was already started
	ErrPoolRunning = errors.New("worker pool is already running")

	// ErrPoolNotRunning indicates the worker pool is not running
	ErrPoolNotRunning = errors.New("worker pool is not running")

	// ErrBadRequest indicates a request that could not be parsed
	ErrBadRequest = errors.New("bad request")
)

// ConfigError builds an error wrapping ErrInvalidConfig
func ConfigError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// HandlerError represents a failure of the connection handler for one item
type HandlerError struct {
	// WorkerID is the worker that ran the handler
	WorkerID int

	// Cause is the underlying error
	Cause error

	// Context contains error context information
	Context map[string]interface{}
}

// NewHandlerError creates a new handler error
func NewHandlerError(workerID int, cause error) *HandlerError {
	return &HandlerError{
		WorkerID: workerID,
		Cause:    cause,
		Context:  make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler error in worker %d: %v", e.WorkerID, e.Cause)
}

// Unwrap returns the underlying error
func (e *HandlerError) Unwrap() error {
	return e.Cause
}

// WithContext adds error context
func (e *HandlerError) WithContext(key string, value interface{}) *HandlerError {
	e.Context[key] = value
	return e
}

// IsTimeout reports whether err is a network timeout
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
