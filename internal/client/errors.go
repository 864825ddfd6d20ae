package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// APIError represents a provider API error with an HTTP status code.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether an error is a transient provider or network
// failure worth retrying. Cancellation is never retryable: it is a
// first-class terminal status, not an error.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}

	// String fallback for untyped errors from provider SDKs.
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"rate limit",
		"overloaded",
		"unexpected eof",
		"tls handshake",
		"no such host",
		"connection reset",
		"unavailable",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
