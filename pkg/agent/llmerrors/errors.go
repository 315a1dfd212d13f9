// Package llmerrors provides structured error classification for remote model calls.
package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorType represents different categories of LLM errors for retry logic.
type ErrorType int8

const (
	// Transient error types.

	// ErrorTypeRateLimit represents rate limiting errors (429, quota exceeded).
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient represents timeouts, connectivity failures and 5xx responses.
	ErrorTypeTransient
	// ErrorTypeEmptyResponse represents HTTP 200 but no content errors.
	ErrorTypeEmptyResponse

	// Fatal error types.

	// ErrorTypeAuth represents authentication errors (401/403, bad API key).
	ErrorTypeAuth
	// ErrorTypeBadPrompt represents malformed request errors (400, 422, context too long).
	ErrorTypeBadPrompt
	// ErrorTypeNotFound represents unknown models or endpoints (404).
	ErrorTypeNotFound
	// ErrorTypeUnknown represents default for unclassified errors.
	ErrorTypeUnknown
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Error represents a classified LLM error.
type Error struct {
	Err        error     // Wrapped underlying error
	Message    string    // Human-readable error message
	Provider   string    // Provider that produced the error, if known
	Type       ErrorType // Classified error type
	StatusCode int       // HTTP status code if applicable
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("LLM error (%s): %s", e.Type.String(), e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("LLM error (%s): %v", e.Type.String(), e.Err)
	}
	return fmt.Sprintf("LLM error (%s): status %d", e.Type.String(), e.StatusCode)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the error type is worth retrying.
// Unclassified errors are fatal.
func (e *Error) IsTransient() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeTransient, ErrorTypeEmptyResponse:
		return true
	default:
		return false
	}
}

// Is checks if an error is of a specific type.
func Is(err error, errorType ErrorType) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == errorType
	}
	return false
}

// TypeOf returns the error type of an error, or ErrorTypeUnknown if not classified.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

// IsTransient classifies an arbitrary error from a remote call.
//
// Transient: classified rate limit/transient/empty-response errors, per-attempt
// deadlines and network timeouts or dial failures. Everything else, including
// caller cancellation, is fatal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.IsTransient()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// TypeForStatus maps an HTTP status code to an error type.
func TypeForStatus(status int) ErrorType {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status == http.StatusRequestTimeout:
		return ErrorTypeTransient
	case status >= http.StatusInternalServerError:
		return ErrorTypeTransient
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrorTypeAuth
	case status == http.StatusNotFound:
		return ErrorTypeNotFound
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity,
		status == http.StatusRequestEntityTooLarge:
		return ErrorTypeBadPrompt
	default:
		return ErrorTypeUnknown
	}
}

// FromStatus wraps cause with the error type implied by an HTTP status code.
func FromStatus(provider string, status int, cause error) *Error {
	return &Error{
		Type:       TypeForStatus(status),
		StatusCode: status,
		Provider:   provider,
		Err:        cause,
		Message:    fmt.Sprintf("%s returned status %d", provider, status),
	}
}

// NewError creates a new classified LLM error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
	}
}

// NewErrorWithStatus creates a new classified LLM error with HTTP status.
func NewErrorWithStatus(errorType ErrorType, statusCode int, message string) *Error {
	return &Error{
		Type:       errorType,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewErrorWithCause creates a new classified LLM error wrapping another error.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{
		Type:    errorType,
		Err:     cause,
		Message: message,
	}
}

// Classify wraps an SDK error that carried no usable status code. Context and
// network errors are returned unchanged so IsTransient sees them as they are;
// anything else is matched on its message and wrapped with the provider name.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return err
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return err
	}

	msg := strings.ToLower(err.Error())
	wrap := func(t ErrorType, what string) error {
		return &Error{Type: t, Provider: provider, Err: err, Message: fmt.Sprintf("%s %s", provider, what)}
	}
	switch {
	case containsAny(msg, "connection refused", "connection reset", "timeout", "temporar", "eof", "unavailable", "overloaded"):
		return wrap(ErrorTypeTransient, "connection or server error")
	case containsAny(msg, "rate limit", "quota", "too many requests"):
		return wrap(ErrorTypeRateLimit, "rate limited")
	case containsAny(msg, "unauthorized", "api key", "permission denied"):
		return wrap(ErrorTypeAuth, "authentication failed")
	case strings.Contains(msg, "model") && strings.Contains(msg, "not found"):
		return wrap(ErrorTypeNotFound, "model not found")
	case containsAny(msg, "invalid", "malformed", "too large", "context length"):
		return wrap(ErrorTypeBadPrompt, "rejected the request")
	default:
		return wrap(ErrorTypeUnknown, "call failed")
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
