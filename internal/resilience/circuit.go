package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects requests until the reset timeout elapses.
	CircuitOpen
	// CircuitHalfOpen lets a probe request test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a provider is skipped because its circuit is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig controls circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit. Default: 3.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open. Default: 60s.
	ResetTimeout time.Duration

	// Counts decides whether an error counts toward the threshold. If nil,
	// every error counts.
	Counts func(err error) bool
}

// FromBreakerConfig converts config values; non-positive values keep defaults.
func FromBreakerConfig(failureThreshold, resetTimeoutSecs int) BreakerConfig {
	cfg := BreakerConfig{FailureThreshold: 3, ResetTimeout: 60 * time.Second}
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}

// Breaker is a circuit breaker guarding one upstream provider.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time

	nowFunc func() time.Time
}

// NewBreaker creates a closed breaker for the named provider.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	return &Breaker{name: name, cfg: cfg, nowFunc: time.Now}
}

// Allow returns ErrCircuitOpen while the circuit is open. Once the reset
// timeout has elapsed the breaker moves to half-open and lets a probe through.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitOpen {
		if b.nowFunc().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return ErrCircuitOpen
		}
		b.transition(CircuitHalfOpen)
	}
	return nil
}

// Record updates the breaker with the outcome of a call.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || (b.cfg.Counts != nil && !b.cfg.Counts(err)) {
		b.failures = 0
		if b.state == CircuitHalfOpen {
			b.transition(CircuitClosed)
		}
		return
	}

	b.failures++
	if b.state == CircuitHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.openedAt = b.nowFunc()
		if b.state != CircuitOpen {
			b.transition(CircuitOpen)
		}
	}
}

// State returns the current state, reporting half-open once an open circuit
// is eligible for a probe.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen && b.nowFunc().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return CircuitHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state != CircuitClosed {
		b.transition(CircuitClosed)
	}
}

func (b *Breaker) transition(to CircuitState) {
	from := b.state
	b.state = to
	zap.L().Info("circuit breaker state change",
		zap.String("provider", b.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int("failures", b.failures),
	)
}
