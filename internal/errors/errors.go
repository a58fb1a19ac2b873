// Package errors provides the error taxonomy shared by the price retrieval
// components. Every failure surfaced by the core is a ClassifiedError carrying
// its type, whether a retry may succeed, and where it happened, so callers can
// branch with errors.Is against the exported sentinels.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrorType represents the classification of an error
type ErrorType string

const (
	// Input errors, raised before any network call
	ErrorTypeFormat ErrorType = "format" // Malformed date string
	ErrorTypeRange  ErrorType = "range"  // Invalid or oversized date range

	// Retryable error types
	ErrorTypeRateLimit ErrorType = "rate_limit" // HTTP 429
	ErrorTypeTransport ErrorType = "transport"  // Network failure, 5xx, undecodable body

	// Non-retryable error types
	ErrorTypeNotFound       ErrorType = "not_found"      // HTTP 404, unknown coin
	ErrorTypeAuthentication ErrorType = "authentication" // HTTP 401
	ErrorTypeBadRequest     ErrorType = "bad_request"    // Other HTTP 4xx
	ErrorTypeNoData         ErrorType = "no_data"        // Response without the expected payload
	ErrorTypeCancelled      ErrorType = "cancelled"      // Caller requested cancellation

	ErrorTypeUnknown ErrorType = "unknown"
)

// Sentinels for errors.Is comparisons. Matching is by type only.
var (
	ErrFormat      = &ClassifiedError{Type: ErrorTypeFormat, Err: errors.New("malformed input")}
	ErrRange       = &ClassifiedError{Type: ErrorTypeRange, Err: errors.New("invalid date range")}
	ErrNotFound    = &ClassifiedError{Type: ErrorTypeNotFound, Err: errors.New("coin not found")}
	ErrAuth        = &ClassifiedError{Type: ErrorTypeAuthentication, Err: errors.New("authentication failed")}
	ErrRateLimited = &ClassifiedError{Type: ErrorTypeRateLimit, Err: errors.New("rate limited")}
	ErrTransport   = &ClassifiedError{Type: ErrorTypeTransport, Err: errors.New("transport failure")}
	ErrCancelled   = &ClassifiedError{Type: ErrorTypeCancelled, Err: errors.New("cancelled")}
	ErrBadRequest  = &ClassifiedError{Type: ErrorTypeBadRequest, Err: errors.New("bad request")}
	ErrNoData      = &ClassifiedError{Type: ErrorTypeNoData, Err: errors.New("no data")}
)

// ClassifiedError represents an error with metadata for handling decisions
type ClassifiedError struct {
	Err        error         `json:"error"`
	Type       ErrorType     `json:"type"`
	Retryable  bool          `json:"retryable"`
	Component  string        `json:"component"`
	Operation  string        `json:"operation"`
	CoinID     string        `json:"coin_id,omitempty"`
	StatusCode int           `json:"status_code,omitempty"`
	Attempts   int           `json:"attempts,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// New creates a classified error. Retryable is derived from the type.
func New(errType ErrorType, component, operation string, err error) *ClassifiedError {
	return &ClassifiedError{
		Err:       err,
		Type:      errType,
		Retryable: defaultRetryable(errType),
		Component: component,
		Operation: operation,
		Timestamp: time.Now(),
	}
}

// Newf is like New but formats the underlying error message.
func Newf(errType ErrorType, component, operation, format string, args ...any) *ClassifiedError {
	return New(errType, component, operation, fmt.Errorf(format, args...))
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	var b strings.Builder
	if ce.Component != "" {
		fmt.Fprintf(&b, "[%s/%s] ", ce.Component, ce.Type)
	} else {
		fmt.Fprintf(&b, "[%s] ", ce.Type)
	}
	if ce.Operation != "" {
		b.WriteString(ce.Operation)
		b.WriteString(": ")
	}
	if ce.Err != nil {
		b.WriteString(ce.Err.Error())
	}
	if ce.Attempts > 1 {
		fmt.Fprintf(&b, " (after %d attempts)", ce.Attempts)
	}
	return b.String()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Is checks if the error is of the specified type
func (ce *ClassifiedError) Is(target error) bool {
	if t, ok := target.(*ClassifiedError); ok {
		return ce.Type == t.Type
	}
	return errors.Is(ce.Err, target)
}

// WithCoin sets the coin identifier and returns the receiver.
func (ce *ClassifiedError) WithCoin(coinID string) *ClassifiedError {
	ce.CoinID = coinID
	return ce
}

// WithStatus sets the HTTP status code and returns the receiver.
func (ce *ClassifiedError) WithStatus(code int) *ClassifiedError {
	ce.StatusCode = code
	return ce
}

// Terminal marks the error as no longer retryable after the given number of attempts.
func (ce *ClassifiedError) Terminal(attempts int) *ClassifiedError {
	ce.Retryable = false
	ce.Attempts = attempts
	return ce
}

func defaultRetryable(t ErrorType) bool {
	switch t {
	case ErrorTypeRateLimit, ErrorTypeTransport:
		return true
	default:
		return false
	}
}

// ClassifyHTTPStatus maps a non-2xx status code to an error type and whether
// the request may be retried.
func ClassifyHTTPStatus(status int) (ErrorType, bool) {
	switch {
	case status == http.StatusNotFound:
		return ErrorTypeNotFound, false
	case status == http.StatusUnauthorized:
		return ErrorTypeAuthentication, false
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit, true
	case status >= 500:
		return ErrorTypeTransport, true
	case status >= 400:
		return ErrorTypeBadRequest, false
	default:
		return ErrorTypeTransport, true
	}
}

// ClassifyTransport classifies an error raised while sending a request or
// reading its body. Context cancellation is reported as cancelled, everything
// else as a retryable transport failure.
func ClassifyTransport(err error) ErrorType {
	if errors.Is(err, context.Canceled) {
		return ErrorTypeCancelled
	}
	return ErrorTypeTransport
}

// IsTimeout reports whether err is a network or deadline timeout.
func IsTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsNetwork reports whether err originates from the network stack.
func IsNetwork(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Utility functions

// WrapError wraps an error with additional context
func WrapError(err error, component, operation, message string) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s in %s.%s: %w", message, component, operation, err)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// GetErrorType extracts the error type from a classified error
func GetErrorType(err error) ErrorType {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsCancelled reports whether err represents a caller cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// Cancelled returns a cancellation error for the given operation.
func Cancelled(component, operation string) *ClassifiedError {
	return New(ErrorTypeCancelled, component, operation, errors.New("cancelled by caller"))
}

// NewBackOff creates a backoff strategy: "fixed", "linear" or "exponential"
// (the default). Jitter adds up to ±10% to every interval.
func NewBackOff(strategy string, initial, max time.Duration, jitter bool) backoff.BackOff {
	if max < initial {
		max = initial
	}

	var b backoff.BackOff

	switch strategy {
	case "fixed", "":
		b = backoff.NewConstantBackOff(initial)
	case "linear":
		b = &LinearBackoff{
			interval: initial,
			max:      max,
		}
	default:
		exponential := backoff.NewExponentialBackOff()
		exponential.InitialInterval = initial
		exponential.MaxInterval = max
		exponential.MaxElapsedTime = 0
		exponential.RandomizationFactor = 0
		exponential.Reset()
		b = exponential
	}

	if jitter {
		b = &JitteredBackoff{BackOff: b}
	}

	return b
}

// LinearBackoff implements a simple linear backoff strategy
type LinearBackoff struct {
	interval time.Duration
	max      time.Duration
	current  time.Duration
}

// NewLinearBackoff returns a backoff growing by interval up to max.
func NewLinearBackoff(interval, max time.Duration) *LinearBackoff {
	return &LinearBackoff{interval: interval, max: max}
}

// NextBackOff returns the next backoff interval
func (lb *LinearBackoff) NextBackOff() time.Duration {
	if lb.current == 0 {
		lb.current = lb.interval
	} else {
		lb.current += lb.interval
	}

	if lb.current > lb.max {
		lb.current = lb.max
	}

	return lb.current
}

// Reset resets the backoff to its initial state
func (lb *LinearBackoff) Reset() {
	lb.current = 0
}

// JitteredBackoff adds jitter to another backoff strategy
type JitteredBackoff struct {
	backoff.BackOff
}

// NextBackOff returns the next backoff interval with jitter
func (jb *JitteredBackoff) NextBackOff() time.Duration {
	next := jb.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}

	// ±10%
	jitter := float64(next) * 0.1
	offset := (2.0*float64(time.Now().UnixNano()%1000)/1000.0 - 1.0) * jitter
	return next + time.Duration(offset)
}
