// Package resilience provides the circuit breaker and transient error
// classification for external service calls.
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
	// CircuitClosed is the normal operating state — requests flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means too many consecutive failures — requests are
	// rejected until the cooldown elapses.
	CircuitOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening
	// the circuit. Default: 3.
	FailureThreshold int

	// Cooldown is how long the circuit stays open before closing again with
	// a fresh failure counter. Default: 5m.
	Cooldown time.Duration

	// OnStateChange is called when the circuit transitions between states.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the defaults used for the rendering
// service tier.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 3,
		Cooldown:         5 * time.Minute,
	}
}

// CircuitBreaker tracks consecutive failures of a single upstream service.
// One instance is shared by all in-flight extractions; the count is a coarse
// protective heuristic, not precise accounting.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu                  sync.Mutex
	consecutiveFailures int
	trippedAt           time.Time // zero when not tripped

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given config.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &CircuitBreaker{
		cfg:     cfg,
		nowFunc: time.Now,
	}
}

// Allow reports whether a call may proceed. Returns ErrCircuitOpen while the
// circuit is open. Once the cooldown has elapsed the breaker closes itself
// and the failure counter restarts from zero.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.consecutiveFailures < cb.cfg.FailureThreshold {
		return nil
	}
	if cb.nowFunc().Sub(cb.trippedAt) <= cb.cfg.Cooldown {
		return ErrCircuitOpen
	}

	// Cooldown elapsed: close and start over.
	cb.consecutiveFailures = 0
	cb.trippedAt = time.Time{}
	cb.notify(CircuitOpen, CircuitClosed)
	return nil
}

// RecordFailure increments the consecutive failure counter and trips the
// breaker at the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	if cb.consecutiveFailures == cb.cfg.FailureThreshold {
		cb.trippedAt = cb.nowFunc()
		cb.notify(CircuitClosed, CircuitOpen)
		zap.L().Warn("resilience: circuit breaker opened",
			zap.Int("failures", cb.consecutiveFailures),
			zap.Duration("cooldown", cb.cfg.Cooldown),
		)
	}
}

// RecordSuccess clears the failure counter and trip timestamp.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	wasOpen := cb.consecutiveFailures >= cb.cfg.FailureThreshold
	cb.consecutiveFailures = 0
	cb.trippedAt = time.Time{}
	if wasOpen {
		cb.notify(CircuitOpen, CircuitClosed)
	}
}

// Reset forces the circuit back to closed state unconditionally. Operational
// escape hatch; used heavily in tests.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	wasOpen := cb.consecutiveFailures >= cb.cfg.FailureThreshold
	cb.consecutiveFailures = 0
	cb.trippedAt = time.Time{}
	if wasOpen {
		cb.notify(CircuitOpen, CircuitClosed)
	}
}

// State returns the current circuit state without mutating it.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.consecutiveFailures >= cb.cfg.FailureThreshold &&
		cb.nowFunc().Sub(cb.trippedAt) <= cb.cfg.Cooldown {
		return CircuitOpen
	}
	return CircuitClosed
}

// Counters returns the current failure count and state for observability.
func (cb *CircuitBreaker) Counters() (consecutiveFailures int, state CircuitState) {
	cb.mu.Lock()
	failures := cb.consecutiveFailures
	open := failures >= cb.cfg.FailureThreshold &&
		cb.nowFunc().Sub(cb.trippedAt) <= cb.cfg.Cooldown
	cb.mu.Unlock()

	if open {
		return failures, CircuitOpen
	}
	return failures, CircuitClosed
}

func (cb *CircuitBreaker) notify(from, to CircuitState) {
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}
