package transport

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Sternrassler/newsfeed-client/pkg/article"
)

// ErrorClass represents a classification of fetch errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassServer represents 5xx and other unexpected statuses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents failures before a status code was obtained.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassFormat represents validation failures of decoded records.
	ErrorClassFormat ErrorClass = "format"

	// ErrorClassUnknown is used for errors from other sources.
	ErrorClassUnknown ErrorClass = "unknown"
)

// HTTPError is returned when the server answers outside [200,300).
type HTTPError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// TransportError is returned for failures before a status code was obtained:
// DNS, timeouts, connection resets and malformed bodies.
type TransportError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("transport error: %s", e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Classify maps an error to its ErrorClass.
func Classify(err error) ErrorClass {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return ErrorClassRateLimit
		case httpErr.StatusCode >= 400 && httpErr.StatusCode < 500:
			return ErrorClassClient
		default:
			return ErrorClassServer
		}
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return ErrorClassNetwork
	}

	var formatErr *article.FormatError
	if errors.As(err, &formatErr) {
		return ErrorClassFormat
	}

	return ErrorClassUnknown
}

// IsRetryable reports whether another attempt could succeed. Client errors
// (4xx except 429) and format errors are final; everything else is treated
// as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return shouldRetry(Classify(err))
}

// shouldRetry determines if an error class should be retried.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassClient, ErrorClassFormat:
		return false
	default:
		return true
	}
}
