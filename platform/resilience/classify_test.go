package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "deadline exceeded" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyHTTPStatuses(t *testing.T) {
	cases := []struct {
		status    int
		category  Category
		retryable bool
	}{
		{429, CategoryRateLimit, true},
		{500, CategoryServer, true},
		{502, CategoryServer, true},
		{504, CategoryServer, true},
		{401, CategoryAuth, false},
		{403, CategoryAuth, false},
		{400, CategoryClient, false},
	}

	for _, tc := range cases {
		got := Classify(NewStatusError(tc.status, errors.New("provider error")))
		if got.Category != tc.category {
			t.Errorf("status %d: expected category %s, got %s", tc.status, tc.category, got.Category)
		}
		if got.Retryable != tc.retryable {
			t.Errorf("status %d: expected retryable=%v, got %v", tc.status, tc.retryable, got.Retryable)
		}
	}
}

func TestClassifyNetworkErrors(t *testing.T) {
	cases := []error{
		timeoutErr{},
		&net.DNSError{Err: "no such host", Name: "api.moonshot.ai"},
		syscall.ECONNRESET,
		syscall.ECONNREFUSED,
		fmt.Errorf("write: %w", syscall.EPIPE),
		errors.New("dial tcp: connection refused"),
	}
	for _, err := range cases {
		got := Classify(err)
		if got.Category != CategoryNetwork {
			t.Errorf("%v: expected network_error, got %s", err, got.Category)
		}
		if !got.Retryable {
			t.Errorf("%v: expected retryable", err)
		}
	}
}

func TestClassifyNetworkPrecedesStatus(t *testing.T) {
	// A wrapped network failure wins over a status code in the same chain.
	err := NewStatusError(400, timeoutErr{})
	if got := Classify(err); got.Category != CategoryNetwork {
		t.Errorf("expected network_error, got %s", got.Category)
	}
}

func TestClassifyTimeoutMessage(t *testing.T) {
	got := Classify(errors.New("client Timeout exceeded while awaiting headers"))
	if got.Category != CategoryNetwork || !got.Retryable {
		t.Errorf("expected retryable network_error, got %+v", got)
	}
}

func TestClassifyUnknownFailsOpen(t *testing.T) {
	got := Classify(errors.New("something unexpected"))
	if got.Category != CategoryUnknown {
		t.Errorf("expected unknown, got %s", got.Category)
	}
	if !got.Retryable {
		t.Error("unknown errors must be retryable")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(NewStatusError(401, errors.New("bad key"))) {
		t.Error("auth errors must not be retryable")
	}
	if !IsRetryable(NewStatusError(503, errors.New("overloaded"))) {
		t.Error("server errors must be retryable")
	}
}
