// Package errors provides standardized error handling for streamcore components.
// It includes error classification, the structured connection error surfaced by
// the pipeline, and helper functions for consistent error wrapping.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Pipeline lifecycle errors
	ErrAlreadyConnected = errors.New("pipeline already connected")
	ErrNotConnected     = errors.New("pipeline not connected")
	ErrPipelineClosed   = errors.New("pipeline closed")

	// Correlation errors
	ErrResponseTimeout  = errors.New("response timeout")
	ErrDuplicatePending = errors.New("correlation id already pending")

	// Worker errors
	ErrWorkerInit      = errors.New("worker initialization failed")
	ErrWorkerDisposed  = errors.New("worker disposed")
	ErrUnknownMethod   = errors.New("unknown engine method")
	ErrWorkerNotReady  = errors.New("worker not ready")
	ErrSegmentTooSmall = errors.New("shared segment too small for payload")
)

// ConnectionErrorType classifies connection failures surfaced by the pipeline.
type ConnectionErrorType string

// Connection error types
const (
	// ConnectFailed means this attempt never successfully opened
	ConnectFailed ConnectionErrorType = "connect_failed"
	// ConnectionLost means the transport closed after having been open
	ConnectionLost ConnectionErrorType = "connection_lost"
	// MaxRetriesExhausted is terminal: automatic reconnection stops
	MaxRetriesExhausted ConnectionErrorType = "max_retries_exhausted"
)

// ConnectionError is the structured error delivered to pipeline error handlers.
// It is non-fatal unless Type is MaxRetriesExhausted; the pipeline recovers
// locally via backoff for the other types.
type ConnectionError struct {
	Type      ConnectionErrorType
	Message   string
	Attempt   int
	Timestamp time.Time
	Err       error
}

// Error implements the error interface
func (ce *ConnectionError) Error() string {
	if ce.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ce.Type, ce.Message, ce.Err)
	}
	return fmt.Sprintf("%s: %s", ce.Type, ce.Message)
}

// Unwrap returns the underlying error
func (ce *ConnectionError) Unwrap() error {
	return ce.Err
}

// NewConnectionError builds a ConnectionError stamped with the current time.
func NewConnectionError(typ ConnectionErrorType, message string, attempt int, err error) *ConnectionError {
	return &ConnectionError{
		Type:      typ,
		Message:   message,
		Attempt:   attempt,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	var conn *ConnectionError
	if errors.As(err, &conn) {
		return conn.Type != MaxRetriesExhausted
	}

	return errors.Is(err, ErrResponseTimeout) ||
		errors.Is(err, ErrNotConnected) ||
		errors.Is(err, ErrWorkerNotReady)
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	var conn *ConnectionError
	if errors.As(err, &conn) {
		return conn.Type == MaxRetriesExhausted
	}

	return errors.Is(err, ErrWorkerInit) || errors.Is(err, ErrPipelineClosed)
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrDuplicatePending) ||
		errors.Is(err, ErrUnknownMethod) ||
		errors.Is(err, ErrSegmentTooSmall)
}

// newClassified creates a new classified error.
// Internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}
