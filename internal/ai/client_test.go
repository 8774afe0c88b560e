package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadchat_backend/platform/resilience"
)

type clientConfig struct {
	baseURL string
}

func (c clientConfig) GetAIBaseURL() string { return c.baseURL }
func (c clientConfig) GetAIAPIKey() string { return "test-key" }
func (c clientConfig) GetAIModel() string { return "kimi-k2" }
func (c clientConfig) GetAITimeout() time.Duration { return 5 * time.Second }
func (c clientConfig) GetAIRequestsPerSecond() float64 { return 100 }
func (c clientConfig) GetBreakerThreshold() int { return 5 }
func (c clientConfig) GetBreakerWindow() time.Duration { return time.Minute }
func (c clientConfig) GetBreakerResetTime() time.Duration { return 30 * time.Second }
func (c clientConfig) GetAIMaxRetries() int { return 0 }
func (c clientConfig) GetAIBaseDelay() time.Duration { return time.Millisecond }
func (c clientConfig) GetAIMaxDelay() time.Duration { return time.Millisecond }

func TestCompleteParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "Olá! Como posso ajudar?"}}],
			"usage": {"total_tokens": 42}
		}`))
	}))
	defer srv.Close()

	client := NewClient(clientConfig{baseURL: srv.URL})
	raw, err := client.Complete(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw.Text != "Olá! Como posso ajudar?" {
		t.Errorf("unexpected text %q", raw.Text)
	}
	if raw.TokensUsed != 42 {
		t.Errorf("unexpected token count %d", raw.TokensUsed)
	}
}

func TestCompleteMissingUsageDefaultsToZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "oi"}}]}`))
	}))
	defer srv.Close()

	client := NewClient(clientConfig{baseURL: srv.URL})
	raw, err := client.Complete(context.Background(), "s", "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw.TokensUsed != 0 {
		t.Errorf("expected zero tokens, got %d", raw.TokensUsed)
	}
}

func TestCompleteSerializesStructuredContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": {"parts": ["a", "b"]}}}]}`))
	}))
	defer srv.Close()

	client := NewClient(clientConfig{baseURL: srv.URL})
	raw, err := client.Complete(context.Background(), "s", "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw.Text != `{"parts": ["a", "b"]}` {
		t.Errorf("structured content not serialized verbatim: %q", raw.Text)
	}
}

func TestCompleteNonOKReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "rate limited"}`))
	}))
	defer srv.Close()

	client := NewClient(clientConfig{baseURL: srv.URL})
	_, err := client.Complete(context.Background(), "s", "u")
	if err == nil {
		t.Fatal("expected error")
	}

	var statusErr *resilience.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %T: %v", err, err)
	}
	if statusErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", statusErr.StatusCode)
	}
	if !resilience.IsRetryable(err) {
		t.Error("429 must classify as retryable")
	}
}

func TestCompleteEmptyChoicesFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	client := NewClient(clientConfig{baseURL: srv.URL})
	if _, err := client.Complete(context.Background(), "s", "u"); err == nil {
		t.Fatal("expected error for empty choices")
	}
}
