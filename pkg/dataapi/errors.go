package dataapi

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrMissingAPIKey is returned by New when no API key is configured.
	ErrMissingAPIKey = errors.New("YT_API_KEY is required")
)

// APIError represents a YouTube Data API error with additional context.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	// Reason is the first reason code from the error payload, e.g. "quotaExceeded".
	Reason  string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Message
	if e.Reason != "" {
		msg = e.Reason + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("YouTube API %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, msg, e.Err)
	}
	return fmt.Sprintf("YouTube API %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, msg)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// ClassOf returns the error class of err, or "" if err is not an APIError.
func ClassOf(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	return ""
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient, ErrorClassAuth:
		// 4xx errors will fail the same way again
		return false
	case ErrorClassQuota:
		// The daily budget does not come back until midnight Pacific
		return false
	case ErrorClassServer:
		return true
	case ErrorClassRateLimit:
		return true
	case ErrorClassNetwork:
		return true
	default:
		return false
	}
}
