// Package resilience provides the circuit breaker, retry and error
// classification primitives used around external service calls.
// This is part of the platform layer and contains no business logic.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// BreakerState represents the state of a circuit breaker.
type BreakerState int

const (
	// BreakerClosed is the normal operating state, calls flow through.
	BreakerClosed BreakerState = iota
	// BreakerOpen means too many recent failures, calls are rejected immediately.
	BreakerOpen
	// BreakerHalfOpen admits a single probe call to test recovery.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned when a call is rejected without reaching the backend.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerConfig controls circuit breaker behavior.
type BreakerConfig struct {
	// Threshold is the number of failures within Window that trips the
	// breaker open. Default: 5.
	Threshold int

	// Window is the trailing period over which failures are counted.
	// Failures older than the window are pruned. Default: 1m.
	Window time.Duration

	// ResetTime is how long the breaker stays open before admitting a
	// half-open probe. Default: 30s.
	ResetTime time.Duration

	// OnStateChange is called when the breaker transitions between states.
	OnStateChange func(from, to BreakerState)
}

// Breaker implements the circuit breaker pattern for a single provider.
// One instance is shared by all concurrent callers of that provider.
type Breaker struct {
	cfg BreakerConfig

	mu              sync.Mutex
	state           BreakerState
	failures        []time.Time
	openedAt        time.Time
	probeInFlight   bool

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewBreaker creates a circuit breaker with the given config.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.ResetTime <= 0 {
		cfg.ResetTime = 30 * time.Second
	}
	return &Breaker{
		cfg:     cfg,
		state:   BreakerClosed,
		nowFunc: time.Now,
	}
}

// Execute runs fn through the breaker. Returns ErrBreakerOpen without
// invoking fn while the breaker is open or a half-open probe is already
// in flight.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allowRequest(); err != nil {
		return err
	}

	err := fn(ctx)
	b.recordResult(err)
	return err
}

// ExecuteVal is like Execute but preserves a return value.
func ExecuteVal[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.allowRequest(); err != nil {
		return zero, err
	}

	val, err := fn(ctx)
	b.recordResult(err)
	return val, err
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && b.nowFunc().Sub(b.openedAt) >= b.cfg.ResetTime {
		return BreakerHalfOpen
	}
	return b.state
}

// Counters returns the windowed failure count and state for observability.
func (b *Breaker) Counters() (failures int, state BreakerState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(b.nowFunc())
	return len(b.failures), b.state
}

func (b *Breaker) allowRequest() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if b.nowFunc().Sub(b.openedAt) >= b.cfg.ResetTime {
			b.transition(BreakerHalfOpen)
			b.probeInFlight = true
			return nil
		}
		return ErrBreakerOpen
	case BreakerHalfOpen:
		// A single probe is admitted per half-open window.
		if b.probeInFlight {
			return ErrBreakerOpen
		}
		b.probeInFlight = true
		return nil
	default:
		return nil
	}
}

func (b *Breaker) recordResult(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFunc()

	if err == nil {
		switch b.state {
		case BreakerHalfOpen:
			b.probeInFlight = false
			b.failures = nil
			b.transition(BreakerClosed)
		case BreakerClosed:
			b.prune(now)
		}
		return
	}

	switch b.state {
	case BreakerClosed:
		b.failures = append(b.failures, now)
		b.prune(now)
		if len(b.failures) >= b.cfg.Threshold {
			b.openedAt = now
			b.transition(BreakerOpen)
		}
	case BreakerHalfOpen:
		// Probe failed, reopen immediately.
		b.probeInFlight = false
		b.openedAt = now
		b.transition(BreakerOpen)
	}
}

func (b *Breaker) prune(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	kept := b.failures[:0]
	for _, ts := range b.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.failures = kept
}

func (b *Breaker) transition(to BreakerState) {
	from := b.state
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
