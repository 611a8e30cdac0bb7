package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/c360/opflow/pkg/retry"
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
	// Operation lifecycle errors
	ErrAlreadyStarted = errors.New("operation already started")
	ErrNotStarted     = errors.New("operation not started")
	ErrAlreadyStopped = errors.New("operation already stopped")
	ErrInvalidState   = errors.New("invalid state transition")

	// Variant errors
	ErrTypeMismatch = errors.New("type mismatch")
	ErrInvalidData  = errors.New("invalid data format")

	// Socket and queue errors
	ErrQueueFull        = errors.New("queue full")
	ErrEmpty            = errors.New("queue empty")
	ErrQueueClosed      = errors.New("queue closed")
	ErrAlreadyConnected = errors.New("input already connected")

	// Protocol errors
	ErrProtocolViolation = errors.New("control tag protocol violation")
	ErrControlTag        = errors.New("control tags are relayed by the runtime")

	// Graph errors
	ErrConnection       = errors.New("connection error")
	ErrUnknownOperation = errors.New("unknown operation")
	ErrDuplicateName    = errors.New("duplicate operation name")

	// Network errors
	ErrNoConnection      = errors.New("no connection available")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	// Retry errors
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

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

// ProtocolError reports a malformed control-tag sequence on one input line.
type ProtocolError struct {
	Operation string
	Line      int
	Reason    string
}

// Error implements the error interface
func (pe *ProtocolError) Error() string {
	if pe.Operation == "" {
		return fmt.Sprintf("%s: line %d: %s", ErrProtocolViolation, pe.Line, pe.Reason)
	}
	return fmt.Sprintf("%s: operation %s line %d: %s", ErrProtocolViolation, pe.Operation, pe.Line, pe.Reason)
}

// Unwrap returns ErrProtocolViolation so errors.Is matches every ProtocolError
func (pe *ProtocolError) Unwrap() error {
	return ErrProtocolViolation
}

// NewProtocolError creates a ProtocolError for the given line.
func NewProtocolError(line int, reason string) *ProtocolError {
	return &ProtocolError{Line: line, Reason: reason}
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

	if errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrNoConnection) ||
		errors.Is(err, ErrQueueFull) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"temporary",
		"unavailable",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
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

	if errors.Is(err, ErrProtocolViolation) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) {
		return true
	}

	return false
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

	if errors.Is(err, ErrInvalidData) ||
		errors.Is(err, ErrTypeMismatch) ||
		errors.Is(err, ErrConnection) ||
		errors.Is(err, ErrAlreadyConnected) ||
		errors.Is(err, ErrControlTag) {
		return true
	}

	return false
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}

	// Fatal first: a protocol violation wrapped by a transient-looking message
	// must still halt the pipeline.
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}
	if IsTransient(err) {
		return ErrorTransient
	}

	return ErrorTransient
}

// newClassified creates a new classified error
// This is an internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
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

// RetryConfig is the configurable retry policy of a connection. Only
// transient errors are retried; RetryableErrors narrows that further.
type RetryConfig struct {
	MaxRetries    int           `json:"max_retries" yaml:"max_retries"`
	InitialDelay  time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay" yaml:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor" yaml:"backoff_factor"`

	RetryableErrors []error `json:"-" yaml:"-"`
}

// DefaultRetryConfig is three retries between 100ms and 5s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Validate checks the schedule.
func (rc RetryConfig) Validate() error {
	switch {
	case rc.MaxRetries < 0:
		return fmt.Errorf("%w: max_retries must not be negative", ErrInvalidConfig)
	case rc.InitialDelay < 0 || rc.MaxDelay < 0 || rc.BackoffFactor < 0:
		return fmt.Errorf("%w: delays and backoff_factor must not be negative", ErrInvalidConfig)
	case rc.MaxDelay > 0 && rc.MaxDelay < rc.InitialDelay:
		return fmt.Errorf("%w: max_delay is below initial_delay", ErrInvalidConfig)
	}
	return nil
}

// ShouldRetry reports whether err deserves another attempt after attempt
// retries already made.
func (rc RetryConfig) ShouldRetry(err error, attempt int) bool {
	return attempt < rc.MaxRetries && rc.retryable(err)
}

func (rc RetryConfig) retryable(err error) bool {
	if err == nil || !IsTransient(err) {
		return false
	}
	if len(rc.RetryableErrors) == 0 {
		return true
	}
	for _, target := range rc.RetryableErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ToRetryConfig converts the policy for the retry package. MaxRetries
// becomes MaxAttempts+1, jitter is enabled, and errors ShouldRetry rejects
// end the loop at once.
func (rc RetryConfig) ToRetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  rc.MaxRetries + 1,
		InitialDelay: rc.InitialDelay,
		MaxDelay:     rc.MaxDelay,
		Multiplier:   rc.BackoffFactor,
		AddJitter:    true,
		Retryable:    rc.retryable,
	}
}
