package client

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of provider failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport failures and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents a success status with a malformed body.
	ErrorClassDecode ErrorClass = "decode"
)

// statusDescriptions are the provider's documented meanings of error statuses.
var statusDescriptions = map[int]string{
	400: "Bad Request: There is a syntax error in the request.",
	401: "Unauthorized: The request does not contain the necessary authentication credentials.",
	403: "Forbidden: The server refuses to authorize the request.",
	404: "Not Found: The server has not found a match for the API request.",
	415: "Unsupported Media Type: The body of the request is in a format that is not supported.",
	429: "Rate Limit Exceeded: The application has exhausted its maximum number of API calls allowed.",
	500: "Internal Server Error: An unexpected condition prevented the server from fulfilling the request.",
	503: "Service Unavailable: The server is currently unavailable to handle requests.",
}

// StatusDescription returns the documented meaning of a status code.
func StatusDescription(code int) string {
	if desc, ok := statusDescriptions[code]; ok {
		return desc
	}
	return "Unknown Error"
}

// ProviderError is a failed remote call.
type ProviderError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	URL        string

	// RetryAfter is the provider's Retry-After hint on 429, if any.
	RetryAfter time.Duration

	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("provider %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status to an error class. 2xx maps to "".
func classifyStatus(code int) ErrorClass {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case code >= 400 && code < 500:
		return ErrorClassClient
	case code >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// shouldRetry determines if an error class may be retried. Rate-limit
// responses are never retried: a retry would spend budget the dispatcher did
// not reserve.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// ClassOf extracts the error class from err, or "" if err is not a ProviderError.
func ClassOf(err error) ErrorClass {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.ErrorClass
	}
	return ""
}
