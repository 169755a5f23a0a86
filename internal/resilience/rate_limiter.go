// Package resilience guards calls to the remote service with a circuit
// breaker and a token-bucket rate limiter. Both live behind a sync.Mutex:
// the replication client runs single-process and cooperatively scheduled,
// so there is no second process to coordinate state with.
package resilience

import (
	"sync"
	"time"
)

// RateLimiterConfig configures the token bucket.
type RateLimiterConfig struct {
	MaxTokens        float64
	RefillRate       float64 // tokens added per second
	TokensPerRequest float64
}

// RateLimiter is a token bucket the Mutator consults before each
// background remote write. It does not gate the queue replay that
// Replicator.Connect runs.
type RateLimiter struct {
	mu     sync.Mutex
	config RateLimiterConfig
	tokens float64
	last   time.Time
	now    func() time.Time
}

// NewRateLimiter creates a RateLimiter with defaults applied for zero
// values.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.MaxTokens <= 0 {
		config.MaxTokens = 50
	}
	if config.RefillRate <= 0 {
		config.RefillRate = 10
	}
	if config.TokensPerRequest <= 0 {
		config.TokensPerRequest = 1
	}
	return &RateLimiter{
		config: config,
		tokens: config.MaxTokens,
		now:    time.Now,
	}
}

func (rl *RateLimiter) refillLocked(now time.Time) {
	if rl.last.IsZero() {
		rl.last = now
		return
	}
	elapsed := now.Sub(rl.last)
	rl.last = now
	rl.tokens += elapsed.Seconds() * rl.config.RefillRate
	if rl.tokens > rl.config.MaxTokens {
		rl.tokens = rl.config.MaxTokens
	}
}

// Allow reports whether a request may proceed, consuming a token on success.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refillLocked(rl.now())
	if rl.tokens >= rl.config.TokensPerRequest {
		rl.tokens -= rl.config.TokensPerRequest
		return true
	}
	return false
}

// Tokens returns the current token count, applying any pending refill.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refillLocked(rl.now())
	return rl.tokens
}

// Reset refills the bucket to capacity.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.tokens = rl.config.MaxTokens
	rl.last = rl.now()
}
