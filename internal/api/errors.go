package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// APIError is a non-2xx response from the workflow service. 429 and 5xx are
// retryable; other 4xx codes are permanent client errors.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// IsRetryable reports whether a failed attempt is worth retrying: 429/5xx
// responses and transient transport conditions (timeout, reset, refused, DNS).
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.StatusCode)
	}
	return isTransient(err)
}

func isTransient(err error) bool {
	return isTimeout(err) || isConnRefused(err) || isDNSFailure(err) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

func isDNSFailure(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
