package scrape

import (
	"errors"

	"github.com/sells-group/listing-intel/internal/resilience"
)

// breakerCounts decides which failures trip a remote provider's breaker.
// Dead links and bad URLs say nothing about the provider's health.
func breakerCounts(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindInvalidURL:
		return false
	default:
		return true
	}
}

// newProviderBreaker builds a breaker that ignores target-side failures.
func newProviderBreaker(name string, cfg resilience.BreakerConfig) *resilience.Breaker {
	cfg.Counts = breakerCounts
	return resilience.NewBreaker(name, cfg)
}

func circuitOpenError(provider, target string) *Error {
	return &Error{Kind: KindRenderFailure, Provider: provider, URL: target, Err: resilience.ErrCircuitOpen}
}

// IsCircuitOpen reports whether err came from a provider skipped by its breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, resilience.ErrCircuitOpen)
}
