// Package errors decides which failures stop the server and which are
// contained to a single connection
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/jzx17/wserver/internal/logging"
)

// ErrorHandler decides what happens after an error
type ErrorHandler interface {
	// HandleError handles the error, returns the error to propagate or nil if handled
	HandleError(ctx context.Context, errCtx *ErrorContext) error

	// Name returns the name of the error handler
	Name() string

	// CanHandle determines if it can handle specific type of error
	CanHandle(err error) bool
}

// ErrorContext defines context information when error occurs
type ErrorContext struct {
	// Error that occurred
	Error error

	// OperationName is the name of the operation where error occurred
	OperationName string

	// Timestamp when the error occurred
	Timestamp time.Time

	// Attempt is the number of consecutive failures of the operation, including this one
	Attempt int

	// Metadata contains additional key/value pairs for logging
	Metadata map[string]interface{}
}

// NewErrorContext creates a new error context
func NewErrorContext(err error, operationName string) *ErrorContext {
	return &ErrorContext{
		Error:         err,
		OperationName: operationName,
		Timestamp:     time.Now(),
		Attempt:       1,
		Metadata:      make(map[string]interface{}),
	}
}

// WithMetadata adds a metadata entry
func (ec *ErrorContext) WithMetadata(key string, value interface{}) *ErrorContext {
	ec.Metadata[key] = value
	return ec
}

func (ec *ErrorContext) keysAndValues() []interface{} {
	kv := make([]interface{}, 0, 4+2*len(ec.Metadata))
	kv = append(kv, "operation", ec.OperationName, "attempt", ec.Attempt)
	for k, v := range ec.Metadata {
		kv = append(kv, k, v)
	}
	return kv
}

// ErrorHandlerStrategy defines error handling strategy types
type ErrorHandlerStrategy int

const (
	// FailFastStrategy propagates the error to the caller
	FailFastStrategy ErrorHandlerStrategy = iota
	// ContinueOnErrorStrategy records the error and lets the caller carry on
	ContinueOnErrorStrategy
)

// String returns the string representation of the strategy
func (s ErrorHandlerStrategy) String() string {
	switch s {
	case FailFastStrategy:
		return "FailFast"
	case ContinueOnErrorStrategy:
		return "ContinueOnError"
	default:
		return "Unknown"
	}
}

// FailFastHandler implements fail-fast error handling
type FailFastHandler struct {
	name string
}

// NewFailFastHandler creates a new fail-fast handler
func NewFailFastHandler() *FailFastHandler {
	return &FailFastHandler{
		name: FailFastStrategy.String(),
	}
}

// HandleError returns the original error unchanged
func (h *FailFastHandler) HandleError(ctx context.Context, errCtx *ErrorContext) error {
	return errCtx.Error
}

// Name returns the handler name
func (h *FailFastHandler) Name() string {
	return h.name
}

// CanHandle checks if it can handle errors (fail-fast handler can handle all errors)
func (h *FailFastHandler) CanHandle(err error) bool {
	return true
}

// ContinueOnErrorHandler logs errors and swallows them
type ContinueOnErrorHandler struct {
	name      string
	logger    logr.Logger
	verbosity int
}

// ContinueOnErrorConfig contains configuration for continue-on-error handler
type ContinueOnErrorConfig struct {
	// Name registers the handler under a name other than the strategy's
	Name string

	// Logger receives one entry per swallowed error
	Logger logr.Logger

	// Verbosity logs every error as info at this level when positive.
	// Otherwise the first failure of a streak is logged as an error and the
	// repeats at logging.VERBOSE.
	Verbosity int
}

// NewContinueOnErrorHandler creates a continue-on-error handler
func NewContinueOnErrorHandler(config *ContinueOnErrorConfig) *ContinueOnErrorHandler {
	handler := &ContinueOnErrorHandler{
		name:   ContinueOnErrorStrategy.String(),
		logger: logr.Discard(),
	}

	if config != nil {
		if config.Name != "" {
			handler.name = config.Name
		}
		if config.Logger.GetSink() != nil {
			handler.logger = config.Logger
		}
		handler.verbosity = config.Verbosity
	}

	return handler
}

// HandleError logs the error and returns nil
func (h *ContinueOnErrorHandler) HandleError(ctx context.Context, errCtx *ErrorContext) error {
	kv := errCtx.keysAndValues()

	switch {
	case h.verbosity > 0:
		h.logger.V(h.verbosity).Info("Recoverable error, continuing", append(kv, "error", errCtx.Error.Error())...)
	case errCtx.Attempt <= 1:
		h.logger.Error(errCtx.Error, "Recoverable error, continuing", kv...)
	default:
		h.logger.V(logging.VERBOSE).Info("Recoverable error repeated, continuing", append(kv, "error", errCtx.Error.Error())...)
	}
	return nil
}

// Name returns the handler name
func (h *ContinueOnErrorHandler) Name() string {
	return h.name
}

// CanHandle checks if it can handle the error
func (h *ContinueOnErrorHandler) CanHandle(err error) bool {
	return true
}

type binding struct {
	target  error
	handler ErrorHandler
}

// HandlerRegistry is a registry for error handlers
type HandlerRegistry struct {
	handlers       map[string]ErrorHandler
	bindings       []binding
	defaultHandler ErrorHandler
	mu             sync.RWMutex
}

// NewHandlerRegistry creates a registry holding the built-in strategies.
// Errors that match no binding go to the fail-fast handler.
func NewHandlerRegistry(logger logr.Logger) *HandlerRegistry {
	failFastHandler := NewFailFastHandler()
	continueOnErrorHandler := NewContinueOnErrorHandler(&ContinueOnErrorConfig{Logger: logger})

	registry := &HandlerRegistry{
		handlers:       make(map[string]ErrorHandler),
		defaultHandler: failFastHandler,
	}

	// built-in names are unique, registration cannot fail
	_ = registry.RegisterHandler(failFastHandler)
	_ = registry.RegisterHandler(continueOnErrorHandler)

	return registry
}

// RegisterHandler registers an error handler
func (r *HandlerRegistry) RegisterHandler(handler ErrorHandler) error {
	if handler == nil {
		return fmt.Errorf("cannot register nil handler")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := handler.Name()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("handler with name %s already exists", name)
	}

	r.handlers[name] = handler
	return nil
}

// GetHandler gets an error handler by name
func (r *HandlerRegistry) GetHandler(name string) (ErrorHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, exists := r.handlers[name]
	if !exists {
		return nil, fmt.Errorf("handler with name %s not found", name)
	}

	return handler, nil
}

// Bind routes errors matching target (errors.Is) to the named handler.
// Bindings are checked in the order they were added.
func (r *HandlerRegistry) Bind(target error, handlerName string) error {
	if target == nil {
		return fmt.Errorf("cannot bind nil error")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	handler, exists := r.handlers[handlerName]
	if !exists {
		return fmt.Errorf("handler with name %s not found", handlerName)
	}

	r.bindings = append(r.bindings, binding{target: target, handler: handler})
	return nil
}

// SetDefaultHandler sets the handler used when no binding matches
func (r *HandlerRegistry) SetDefaultHandler(handlerName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	handler, exists := r.handlers[handlerName]
	if !exists {
		return fmt.Errorf("handler with name %s not found", handlerName)
	}

	r.defaultHandler = handler
	return nil
}

// GetHandlerForError gets the handler responsible for err
func (r *HandlerRegistry) GetHandlerForError(err error) ErrorHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err != nil {
		for _, b := range r.bindings {
			if stderrors.Is(err, b.target) {
				return b.handler
			}
		}
	}

	return r.defaultHandler
}

// Handle dispatches errCtx to the responsible handler
func (r *HandlerRegistry) Handle(ctx context.Context, errCtx *ErrorContext) error {
	if errCtx == nil || errCtx.Error == nil {
		return nil
	}
	return r.GetHandlerForError(errCtx.Error).HandleError(ctx, errCtx)
}
