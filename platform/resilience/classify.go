package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Category names a class of failure for logging and retry decisions.
type Category string

const (
	CategoryNetwork   Category = "network_error"
	CategoryRateLimit Category = "rate_limit"
	CategoryServer    Category = "server_error"
	CategoryAuth      Category = "auth_error"
	CategoryClient    Category = "client_error"
	CategoryUnknown   Category = "unknown"
)

// Classification is the verdict for a single failure.
type Classification struct {
	Category  Category
	Retryable bool
}

// StatusError carries an HTTP status code from a provider response so the
// classifier can map it to a category.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("status %d: %s", e.StatusCode, e.Err.Error())
	}
	return fmt.Sprintf("status %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// NewStatusError wraps an error with the HTTP status code of the response
// that produced it.
func NewStatusError(statusCode int, err error) *StatusError {
	return &StatusError{StatusCode: statusCode, Err: err}
}

// Classify maps a failure to a category and a retryable verdict.
// Unknown errors are classified as retryable: transient infrastructure
// failures that slip past the known patterns should not fail a job outright.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Category: CategoryUnknown, Retryable: false}
	}

	if isNetworkError(err) {
		return Classification{Category: CategoryNetwork, Retryable: true}
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == 429:
			return Classification{Category: CategoryRateLimit, Retryable: true}
		case se.StatusCode >= 500 && se.StatusCode <= 504:
			return Classification{Category: CategoryServer, Retryable: true}
		case se.StatusCode == 401 || se.StatusCode == 403:
			return Classification{Category: CategoryAuth, Retryable: false}
		case se.StatusCode == 400:
			return Classification{Category: CategoryClient, Retryable: false}
		}
	}

	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return Classification{Category: CategoryNetwork, Retryable: true}
	}

	return Classification{Category: CategoryUnknown, Retryable: true}
}

// IsRetryable is a convenience wrapper over Classify for retry predicates.
func IsRetryable(err error) bool {
	return Classify(err).Retryable
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	patterns := []string{
		"connection reset by peer",
		"connection refused",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"tls handshake timeout",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
