// Package resilience provides retry and circuit breaker primitives for the
// scrape and parse stages.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy controls retries for a single pipeline stage.
type Policy struct {
	// Stage names the stage in logs ("scrape", "parse").
	Stage string

	// MaxAttempts is the total number of attempts including the first try.
	// A value of 1 disables retries. Default: 3.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry. Default: 500ms.
	InitialBackoff time.Duration

	// MaxBackoff caps any single delay. Default: 30s.
	MaxBackoff time.Duration

	// Multiplier scales the delay after each attempt. Default: 2.0.
	Multiplier float64

	// JitterFraction randomizes each delay by ±fraction. Default: 0.25.
	JitterFraction float64

	// Retryable decides whether an error is worth another attempt.
	// If nil, IsTransient is used.
	Retryable func(err error) bool

	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy returns the default retry policy for a stage.
func DefaultPolicy(stage string) Policy {
	return Policy{
		Stage:          stage,
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// FromStageConfig builds a policy from config values; non-positive values
// keep the defaults.
func FromStageConfig(stage string, maxAttempts, initialBackoffMs, maxBackoffMs int) Policy {
	p := DefaultPolicy(stage)
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		p.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		p.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	return p
}

// Retry runs fn until it succeeds, returns a non-retryable error, exhausts
// MaxAttempts, or ctx is done. The last error is returned unchanged so
// callers can still classify it.
func Retry[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = applyDefaults(p)

	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) {
			return zero, lastErr
		}
		if attempt >= p.MaxAttempts-1 {
			break
		}

		delay := backoff(attempt, p)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, delay)
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

// MaxElapsed is the longest Retry can run when every attempt takes
// attemptTimeout and every backoff draws the full positive jitter.
func (p Policy) MaxElapsed(attemptTimeout time.Duration) time.Duration {
	p = applyDefaults(p)

	total := time.Duration(p.MaxAttempts) * attemptTimeout
	for attempt := 0; attempt < p.MaxAttempts-1; attempt++ {
		delay := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt))
		if delay > float64(p.MaxBackoff) {
			delay = float64(p.MaxBackoff)
		}
		total += time.Duration(delay * (1 + p.JitterFraction))
	}
	return total
}

func applyDefaults(p Policy) Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 500 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 30 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	if p.JitterFraction < 0 {
		p.JitterFraction = 0
	}
	return p
}

func backoff(attempt int, p Policy) time.Duration {
	delay := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt))
	if delay > float64(p.MaxBackoff) {
		delay = float64(p.MaxBackoff)
	}

	if p.JitterFraction > 0 {
		span := delay * p.JitterFraction
		delay += (rand.Float64()*2 - 1) * span
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// LogRetries returns an OnRetry callback that logs each retry for url.
func LogRetries(stage, url string) func(int, error, time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		zap.L().Warn("retrying stage",
			zap.String("stage", stage),
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
	}
}
