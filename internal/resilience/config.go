package resilience

import "time"

// Config holds configuration for the two resilience primitives that guard
// calls to the remote service.
type Config struct {
	// CircuitBreaker configures the circuit breaker pattern.
	CircuitBreaker CircuitBreakerConfig

	// RateLimiter configures the token bucket rate limiter.
	RateLimiter RateLimiterConfig
}

// CircuitBreakerConfig configures the circuit breaker pattern.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	// Default: 5
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successes in half-open
	// state before closing the circuit.
	// Default: 2
	SuccessThreshold int

	// OpenTimeout is how long to wait before transitioning from open to half-open.
	// Default: 30 seconds
	OpenTimeout time.Duration

	// HalfOpenMaxRequests is the max concurrent requests allowed in half-open state.
	// Default: 1
	HalfOpenMaxRequests int
}

// DefaultConfig returns a Config with sensible defaults for throttling
// calls made while reconnecting and draining a mutation queue.
func DefaultConfig() *Config {
	return &Config{
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold:    5,
			SuccessThreshold:    2,
			OpenTimeout:         30 * time.Second,
			HalfOpenMaxRequests: 1,
		},
		RateLimiter: RateLimiterConfig{
			MaxTokens:        50,
			RefillRate:       10,
			TokensPerRequest: 1,
		},
	}
}

// WithCircuitBreaker returns a copy of the config with custom circuit breaker settings.
func (c *Config) WithCircuitBreaker(cb CircuitBreakerConfig) *Config {
	copy := *c
	copy.CircuitBreaker = cb
	return &copy
}

// WithRateLimiter returns a copy of the config with custom rate limiter settings.
func (c *Config) WithRateLimiter(rl RateLimiterConfig) *Config {
	copy := *c
	copy.RateLimiter = rl
	return &copy
}

// WithFailureThreshold sets the failure threshold for the circuit breaker.
func (cb CircuitBreakerConfig) WithFailureThreshold(n int) CircuitBreakerConfig {
	cb.FailureThreshold = n
	return cb
}

// WithSuccessThreshold sets the success threshold for the circuit breaker.
func (cb CircuitBreakerConfig) WithSuccessThreshold(n int) CircuitBreakerConfig {
	cb.SuccessThreshold = n
	return cb
}

// WithOpenTimeout sets the open timeout for the circuit breaker.
func (cb CircuitBreakerConfig) WithOpenTimeout(d time.Duration) CircuitBreakerConfig {
	cb.OpenTimeout = d
	return cb
}

// WithMaxTokens sets the maximum tokens for the rate limiter.
func (rl RateLimiterConfig) WithMaxTokens(n float64) RateLimiterConfig {
	rl.MaxTokens = n
	return rl
}

// WithRefillRate sets the refill rate for the rate limiter.
func (rl RateLimiterConfig) WithRefillRate(n float64) RateLimiterConfig {
	rl.RefillRate = n
	return rl
}
