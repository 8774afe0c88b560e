package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadchat_backend/platform/logger"
	"leadchat_backend/platform/resilience"
)

type fakeInvoker struct {
	calls   int
	results []func() (RawCompletion, error)
}

func (f *fakeInvoker) Complete(context.Context, string, string) (RawCompletion, error) {
	idx := f.calls
	f.calls++
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	return f.results[idx]()
}

func succeed(text string, tokens int) func() (RawCompletion, error) {
	return func() (RawCompletion, error) {
		return RawCompletion{Text: text, TokensUsed: tokens}, nil
	}
}

func failWith(err error) func() (RawCompletion, error) {
	return func() (RawCompletion, error) { return RawCompletion{}, err }
}

type callerConfig struct {
	maxRetries int
	threshold  int
}

func (c callerConfig) GetAIBaseURL() string               { return "http://unused" }
func (c callerConfig) GetAIAPIKey() string                { return "k" }
func (c callerConfig) GetAIModel() string                 { return "kimi-k2" }
func (c callerConfig) GetAITimeout() time.Duration        { return time.Second }
func (c callerConfig) GetAIRequestsPerSecond() float64    { return 1000 }
func (c callerConfig) GetBreakerThreshold() int           { return c.threshold }
func (c callerConfig) GetBreakerWindow() time.Duration    { return time.Minute }
func (c callerConfig) GetBreakerResetTime() time.Duration { return time.Minute }
func (c callerConfig) GetAIMaxRetries() int               { return c.maxRetries }
func (c callerConfig) GetAIBaseDelay() time.Duration      { return time.Millisecond }
func (c callerConfig) GetAIMaxDelay() time.Duration       { return 2 * time.Millisecond }

func newTestCaller(invoker Invoker, cfg callerConfig) *Caller {
	if cfg.threshold == 0 {
		cfg.threshold = 5
	}
	return NewCaller(invoker, cfg, logger.New("development"))
}

func TestGenerateSuccess(t *testing.T) {
	invoker := &fakeInvoker{results: []func() (RawCompletion, error){succeed("olá", 10)}}
	caller := newTestCaller(invoker, callerConfig{maxRetries: 2})

	completion, err := caller.Generate(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if completion.Text != "olá" || completion.TokensUsed != 10 {
		t.Errorf("unexpected completion: %+v", completion)
	}
	if completion.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", completion.Attempts)
	}
}

func TestGenerateRetriesTransientErrors(t *testing.T) {
	serverErr := resilience.NewStatusError(500, errors.New("internal"))
	invoker := &fakeInvoker{results: []func() (RawCompletion, error){
		failWith(serverErr),
		failWith(serverErr),
		succeed("recuperado", 5),
	}}
	caller := newTestCaller(invoker, callerConfig{maxRetries: 3})

	completion, err := caller.Generate(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if completion.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", completion.Attempts)
	}
}

func TestGenerateDoesNotRetryAuthErrors(t *testing.T) {
	authErr := resilience.NewStatusError(401, errors.New("bad key"))
	invoker := &fakeInvoker{results: []func() (RawCompletion, error){failWith(authErr)}}
	caller := newTestCaller(invoker, callerConfig{maxRetries: 3})

	_, err := caller.Generate(context.Background(), "sys", "user")
	if !errors.Is(err, authErr) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if invoker.calls != 1 {
		t.Errorf("auth error must not be retried, got %d calls", invoker.calls)
	}
}

func TestGenerateBreakerOpensAfterRepeatedFailures(t *testing.T) {
	serverErr := resilience.NewStatusError(503, errors.New("unavailable"))
	invoker := &fakeInvoker{results: []func() (RawCompletion, error){failWith(serverErr)}}
	caller := newTestCaller(invoker, callerConfig{maxRetries: 0, threshold: 3})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := caller.Generate(ctx, "s", "u"); err == nil {
			t.Fatal("expected failure")
		}
	}
	if caller.BreakerState() != resilience.BreakerOpen {
		t.Fatalf("expected open breaker, got %v", caller.BreakerState())
	}

	callsBefore := invoker.calls
	_, err := caller.Generate(ctx, "s", "u")
	if !errors.Is(err, resilience.ErrBreakerOpen) {
		t.Fatalf("expected ErrBreakerOpen, got %v", err)
	}
	if invoker.calls != callsBefore {
		t.Error("open breaker must fail fast without calling the provider")
	}
}
