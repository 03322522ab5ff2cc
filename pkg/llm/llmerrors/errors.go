// Package llmerrors provides structured error classification for language
// model calls, so each caller can assert which fallback path fired.
package llmerrors

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorType represents different categories of LLM failures.
type ErrorType int8

const (
	// ErrorTypeTransient represents transient errors (5xx, EOF, connection
	// reset, timeout).
	ErrorTypeTransient ErrorType = iota
	// ErrorTypeRateLimit represents rate limiting errors (429, quota exceeded).
	ErrorTypeRateLimit
	// ErrorTypeEmptyResponse represents a success status with no content.
	ErrorTypeEmptyResponse
	// ErrorTypeAuth represents authentication errors (401/403, bad API key).
	ErrorTypeAuth
	// ErrorTypeBadPrompt represents malformed request errors.
	ErrorTypeBadPrompt
	// ErrorTypeSchemaViolation represents structured output that did not
	// conform to the requested schema.
	ErrorTypeSchemaViolation
	// ErrorTypeMalformedID represents a model reply that should have named a
	// known identifier but did not.
	ErrorTypeMalformedID
	// ErrorTypeUnknown is the default for unclassified errors.
	ErrorTypeUnknown
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeSchemaViolation:
		return "schema_violation"
	case ErrorTypeMalformedID:
		return "malformed_id"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Error wraps an underlying failure with its classification.
type Error struct {
	Err  error
	Type ErrorType
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Type, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(t ErrorType, err error) *Error {
	return &Error{Type: t, Err: err}
}

// Newf creates a classified error from a format string.
func Newf(t ErrorType, format string, args ...any) *Error {
	return &Error{Type: t, Err: fmt.Errorf(format, args...)}
}

// TypeOf returns the classification of err, classifying unwrapped errors by
// inspection.
func TypeOf(err error) ErrorType {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Type
	}
	return classify(err)
}

// Is reports whether err carries the given classification.
func Is(err error, t ErrorType) bool {
	return TypeOf(err) == t
}

// classify inspects an unclassified error for well-known failure signatures.
func classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota"):
		return ErrorTypeRateLimit
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "api key"):
		return ErrorTypeAuth
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "eof") || strings.Contains(msg, "503") || strings.Contains(msg, "500") ||
		strings.Contains(msg, "overloaded"):
		return ErrorTypeTransient
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid request") ||
		strings.Contains(msg, "context length"):
		return ErrorTypeBadPrompt
	default:
		return ErrorTypeUnknown
	}
}
