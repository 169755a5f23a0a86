package resilience

import (
	"sync"
	"time"
)

// Circuit state names.
const (
	CircuitClosed   = "closed"
	CircuitOpen     = "open"
	CircuitHalfOpen = "half_open"
)

// CircuitBreaker guards Replicator.Connect's snapshot fetch: repeated
// remote failures open the circuit and reject further attempts until
// OpenTimeout elapses, at which point a single half-open probe is let
// through to test recovery.
type CircuitBreaker struct {
	mu     sync.Mutex
	config CircuitBreakerConfig

	state            string
	failures         int
	successes        int
	openedAt         time.Time
	halfOpenAttempts int
	now              func() time.Time
}

// NewCircuitBreaker creates a circuit breaker with defaults applied for
// zero values.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	return &CircuitBreaker{
		config: config,
		state:  CircuitClosed,
		now:    time.Now,
	}
}

// Allow reports whether a request may proceed. In half-open state it
// reserves one of config.HalfOpenMaxRequests probe slots; the caller must
// pair an allowed attempt with a subsequent RecordSuccess or RecordFailure.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()

	switch cb.state {
	case CircuitClosed:
		return true

	case CircuitOpen:
		if now.Sub(cb.openedAt) < cb.config.OpenTimeout {
			return false
		}
		cb.state = CircuitHalfOpen
		cb.successes = 0
		cb.failures = 0
		cb.halfOpenAttempts = 1
		return true

	case CircuitHalfOpen:
		if cb.halfOpenAttempts >= cb.config.HalfOpenMaxRequests {
			return false
		}
		cb.halfOpenAttempts++
		return true
	}

	return true
}

// RecordSuccess reports a successful attempt, possibly closing the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		if cb.halfOpenAttempts > 0 {
			cb.halfOpenAttempts--
		}
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.state = CircuitClosed
			cb.failures = 0
			cb.successes = 0
			cb.halfOpenAttempts = 0
		}
	case CircuitClosed:
		cb.failures = 0
	}
}

// RecordFailure reports a failed attempt, possibly opening the circuit.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.state = CircuitOpen
			cb.openedAt = now
		}
	case CircuitHalfOpen:
		if cb.halfOpenAttempts > 0 {
			cb.halfOpenAttempts--
		}
		cb.state = CircuitOpen
		cb.openedAt = now
		cb.successes = 0
		cb.halfOpenAttempts = 0
	}
}

// State returns the current circuit state, reflecting an open-to-half-open
// transition even if Allow hasn't been called since OpenTimeout elapsed.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.config.OpenTimeout {
		return CircuitHalfOpen
	}
	return cb.state
}

// Reset returns the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenAttempts = 0
	cb.openedAt = time.Time{}
}
