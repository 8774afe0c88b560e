package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig controls retry behavior with exponential backoff and jitter.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	// A value of 0 means a single attempt. Default: 3.
	MaxRetries int

	// BaseDelay is the delay before the first retry. Default: 1s.
	BaseDelay time.Duration

	// MaxDelay caps the backoff duration. Default: 30s.
	MaxDelay time.Duration

	// Jitter adds a random delay in [0, BaseDelay/2) to each backoff
	// before the cap is applied. Default: true (via DefaultRetryConfig).
	Jitter bool

	// ShouldRetry decides whether the error for a given attempt (0-based)
	// is worth retrying. If nil, every error is retried.
	ShouldRetry func(err error, attempt int) bool

	// OnRetry is called before each backoff sleep with the failed attempt
	// (0-based), the error, and the computed delay.
	OnRetry func(err error, attempt int, delay time.Duration)
}

// DefaultRetryConfig returns a sensible retry configuration for API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Jitter:     true,
	}
}

// Do executes fn up to MaxRetries+1 times according to cfg. Context
// cancellation stops retries immediately and returns the last error.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal executes fn returning a value with retry logic. Same semantics as Do
// but preserves the return value from the successful call.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	var zero T
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}

		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(lastErr, attempt) {
			return zero, lastErr
		}

		if attempt >= cfg.MaxRetries {
			break
		}

		delay := Backoff(attempt, cfg)
		if cfg.OnRetry != nil {
			cfg.OnRetry(lastErr, attempt, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, lastErr
}

// Backoff computes the delay before retrying the given 0-based attempt:
// min(BaseDelay * 2^attempt + jitter, MaxDelay), with jitter drawn from
// [0, BaseDelay/2) when enabled.
func Backoff(attempt int, cfg RetryConfig) time.Duration {
	cfg = applyDefaults(cfg)

	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if cfg.Jitter {
		delay += rand.Float64() * float64(cfg.BaseDelay) * 0.5
	}
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	return cfg
}
