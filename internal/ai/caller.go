package ai

import (
	"context"
	"time"

	"leadchat_backend/platform/config"
	"leadchat_backend/platform/logger"
	"leadchat_backend/platform/resilience"

	"golang.org/x/time/rate"
)

// Invoker is the raw completion call the caller protects. *Client
// satisfies it.
type Invoker interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (RawCompletion, error)
}

// Completion is the result of one protected generation.
type Completion struct {
	Text       string
	TokensUsed int
	LatencyMs  int64
	Attempts   int
}

// Caller layers rate limiting, the circuit breaker and per-call retries
// around the provider client. The breaker decides whether a call is
// admitted at all; the retry policy re-attempts admitted calls whose
// errors the classifier deems retryable.
type Caller struct {
	invoker Invoker
	breaker *resilience.Breaker
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	model   string
	log     *logger.Logger
}

func NewCaller(invoker Invoker, cfg config.AIConfig, log *logger.Logger) *Caller {
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Threshold: cfg.GetBreakerThreshold(),
		Window:    cfg.GetBreakerWindow(),
		ResetTime: cfg.GetBreakerResetTime(),
		OnStateChange: func(from, to resilience.BreakerState) {
			log.BreakerStateChange(from.String(), to.String())
		},
	})

	rps := cfg.GetAIRequestsPerSecond()
	if rps <= 0 {
		rps = 1
	}

	c := &Caller{
		invoker: invoker,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		model:   cfg.GetAIModel(),
		log:     log,
	}

	c.retry = resilience.RetryConfig{
		MaxRetries:  cfg.GetAIMaxRetries(),
		BaseDelay:   cfg.GetAIBaseDelay(),
		MaxDelay:    cfg.GetAIMaxDelay(),
		Jitter:      true,
		ShouldRetry: func(err error, _ int) bool { return resilience.IsRetryable(err) },
		OnRetry: func(err error, attempt int, delay time.Duration) {
			log.Warn("retrying ai call",
				"attempt", attempt,
				"delayMs", delay.Milliseconds(),
				"category", string(resilience.Classify(err).Category),
				"error", err,
			)
		},
	}

	return c
}

// Generate produces a completion for the given prompts. It returns the
// final error, including resilience.ErrBreakerOpen, once every layer is
// exhausted.
func (c *Caller) Generate(ctx context.Context, systemPrompt, userPrompt string) (Completion, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Completion{}, err
	}

	start := time.Now()
	attempts := 0

	raw, err := resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (RawCompletion, error) {
		return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (RawCompletion, error) {
			attempts++
			return c.invoker.Complete(ctx, systemPrompt, userPrompt)
		})
	})

	latency := time.Since(start).Milliseconds()
	if err != nil {
		return Completion{}, err
	}

	completion := Completion{
		Text:       raw.Text,
		TokensUsed: raw.TokensUsed,
		LatencyMs:  latency,
		Attempts:   attempts,
	}
	c.log.AIRequest(c.model, completion.TokensUsed, completion.LatencyMs, completion.Attempts)
	return completion, nil
}

// BreakerState exposes the breaker state for the ops surface.
func (c *Caller) BreakerState() resilience.BreakerState {
	return c.breaker.State()
}

// BreakerCounters exposes current failure count and state for the ops
// surface.
func (c *Caller) BreakerCounters() (int, resilience.BreakerState) {
	return c.breaker.Counters()
}
