package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies a pipeline error.
type ErrorType string

const (
	// ErrorTypeUpstream indicates an upstream AI service error (5xx/network).
	ErrorTypeUpstream ErrorType = "upstream_error"
	// ErrorTypeRateLimit indicates the AI service rejected the call with 429.
	ErrorTypeRateLimit ErrorType = "rate_limit_error"
	// ErrorTypeInvalidInput indicates a request that cannot possibly succeed
	// on retry (malformed local input, 4xx from the service).
	ErrorTypeInvalidInput ErrorType = "invalid_input_error"
	// ErrorTypeAuthentication indicates missing or rejected credentials.
	ErrorTypeAuthentication ErrorType = "authentication_error"
	// ErrorTypeParse indicates the AI response could not be parsed into the
	// target shape. The model is nondeterministic, so another attempt may
	// produce valid output.
	ErrorTypeParse ErrorType = "parse_error"
	// ErrorTypeExhausted indicates the retry budget ran out.
	ErrorTypeExhausted ErrorType = "retries_exhausted"
)

// GraderError is the base error type for all pipeline errors.
type GraderError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
	// Original error for debugging (not exposed in summaries)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *GraderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *GraderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt can reasonably succeed.
func (e *GraderError) Retryable() bool {
	switch e.Type {
	case ErrorTypeUpstream, ErrorTypeRateLimit, ErrorTypeParse:
		return true
	default:
		return false
	}
}

// IsRetryable classifies an arbitrary error. Errors that are not GraderErrors
// (raw network failures and the like) are treated as transient.
func IsRetryable(err error) bool {
	var ge *GraderError
	if errors.As(err, &ge) {
		return ge.Retryable()
	}
	return true
}

// NewUpstreamError creates an upstream service error (5xx/network).
func NewUpstreamError(statusCode int, message string, err error) *GraderError {
	return &GraderError{
		Type:       ErrorTypeUpstream,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NewRateLimitError creates a rate limit error (429).
func NewRateLimitError(message string) *GraderError {
	return &GraderError{
		Type:       ErrorTypeRateLimit,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
	}
}

// NewInvalidInputError creates a non-retryable input error.
func NewInvalidInputError(message string, err error) *GraderError {
	return &GraderError{
		Type:    ErrorTypeInvalidInput,
		Message: message,
		Err:     err,
	}
}

// NewAuthenticationError creates an authentication error (401/403).
func NewAuthenticationError(message string) *GraderError {
	return &GraderError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewParseError creates a response parse error.
func NewParseError(message string, err error) *GraderError {
	return &GraderError{
		Type:    ErrorTypeParse,
		Message: message,
		Err:     err,
	}
}

// NewExhaustedError wraps the last attempt's error once the retry budget is
// spent.
func NewExhaustedError(attempts int, last error) *GraderError {
	return &GraderError{
		Type:    ErrorTypeExhausted,
		Message: fmt.Sprintf("all %d attempts failed", attempts),
		Err:     last,
	}
}

// ParseAPIError parses an error response from the AI service and returns an
// appropriately classified GraderError.
func ParseAPIError(statusCode int, body []byte, originalErr error) *GraderError {
	var errorResponse struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}

	message := string(body)
	if err := json.Unmarshal(body, &errorResponse); err == nil && errorResponse.Error.Message != "" {
		message = errorResponse.Error.Message
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return NewAuthenticationError(message)
	case statusCode == http.StatusTooManyRequests:
		return NewRateLimitError(message)
	case statusCode >= 400 && statusCode < 500:
		err := NewInvalidInputError(message, originalErr)
		err.StatusCode = statusCode
		return err
	default:
		return NewUpstreamError(statusCode, message, originalErr)
	}
}
