package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorType represents the category of error that occurred during a fetch operation
type ErrorType string

const (
	// ErrorTypeNetwork indicates a network-level error (connection refused, DNS, etc.)
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeRateLimit indicates the request was rejected due to rate limiting (HTTP 429)
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeServer indicates a server error (HTTP 5xx)
	ErrorTypeServer ErrorType = "server"
	// ErrorTypeClient indicates a client error (HTTP 4xx except 408 and 429)
	ErrorTypeClient ErrorType = "client"
	// ErrorTypeRequest indicates the request itself is malformed (bad URL, unsupported scheme)
	ErrorTypeRequest ErrorType = "request"
	// ErrorTypeValidation indicates the response was received but data validation failed
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeTimeout indicates the request timed out
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeResource indicates a scoped resource (browser session) could not be acquired
	ErrorTypeResource ErrorType = "resource"
	// ErrorTypeCanceled indicates the caller canceled the fetch
	ErrorTypeCanceled ErrorType = "canceled"
	// ErrorTypeUnknown indicates an error of unknown type
	ErrorTypeUnknown ErrorType = "unknown"
)

// FetchError represents a structured error from a fetch operation
type FetchError struct {
	Type       ErrorType
	Retryable  bool
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Type, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Type, msg)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// NewNetworkError creates a network error
func NewNetworkError(cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypeNetwork,
		Retryable: true,
		Message:   "network request failed",
		Cause:     cause,
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(statusCode int) *FetchError {
	return &FetchError{
		Type:       ErrorTypeRateLimit,
		Retryable:  true,
		StatusCode: statusCode,
		Message:    "rate limit exceeded",
	}
}

// NewServerError creates a server error
func NewServerError(statusCode int) *FetchError {
	return &FetchError{
		Type:       ErrorTypeServer,
		Retryable:  true,
		StatusCode: statusCode,
		Message:    "server returned an error",
	}
}

// NewClientError creates a client error
func NewClientError(statusCode int, message string) *FetchError {
	return &FetchError{
		Type:       ErrorTypeClient,
		Retryable:  false,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewRequestError creates an error for a request that can never succeed as built
func NewRequestError(message string, cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypeRequest,
		Retryable: false,
		Message:   message,
		Cause:     cause,
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *FetchError {
	return &FetchError{
		Type:      ErrorTypeValidation,
		Retryable: false,
		Message:   message,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypeTimeout,
		Retryable: true,
		Message:   "request timed out",
		Cause:     cause,
	}
}

// NewResourceError creates an error for a scoped resource that could not be acquired
func NewResourceError(message string, cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypeResource,
		Retryable: false,
		Message:   message,
		Cause:     cause,
	}
}

// NewCanceledError creates an error for a fetch aborted by its caller
func NewCanceledError(cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypeCanceled,
		Retryable: false,
		Message:   "fetch canceled",
		Cause:     cause,
	}
}

// ClassifyHTTPError classifies an HTTP status code into an appropriate FetchError
func ClassifyHTTPError(statusCode int) *FetchError {
	switch {
	case statusCode == 429:
		return NewRateLimitError(statusCode)
	case statusCode == 408:
		return &FetchError{
			Type:       ErrorTypeTimeout,
			Retryable:  true,
			StatusCode: statusCode,
			Message:    "server timed out waiting for the request",
		}
	case statusCode >= 500:
		return NewServerError(statusCode)
	case statusCode >= 400:
		return NewClientError(statusCode, fmt.Sprintf("client error: HTTP %d", statusCode))
	default:
		return &FetchError{
			Type:       ErrorTypeUnknown,
			Retryable:  false,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("unexpected status code: %d", statusCode),
		}
	}
}

// ClassifyError turns a transport-level error into a FetchError. parent is the
// caller's context: when it is done the error is reported as a cancellation
// rather than a retryable timeout.
func ClassifyError(parent context.Context, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}

	if parent != nil && parent.Err() != nil {
		return NewCanceledError(err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError(err)
	}

	return NewNetworkError(err)
}

// AsFetchError extracts a FetchError from err, wrapping unknown errors
func AsFetchError(err error) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &FetchError{
		Type:    ErrorTypeUnknown,
		Message: "unclassified error",
		Cause:   err,
	}
}
