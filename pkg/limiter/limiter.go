// Package limiter provides token-bucket rate limiting for language model
// calls, so a runaway tool loop cannot burn through a provider quota.
package limiter

import (
	"fmt"
	"sync"
	"time"
)

// ErrRateLimit is returned when the per-minute token budget is exhausted.
var ErrRateLimit = fmt.Errorf("rate limit exceeded")

// Limiter enforces a tokens-per-minute budget for one model. The bucket
// starts full and refills by whole elapsed minutes, capped at the maximum.
type Limiter struct {
	mu                 sync.Mutex
	maxTokensPerMinute int
	currentTokens      int
	lastRefill         time.Time
}

// New creates a limiter allowing maxTokensPerMinute tokens per minute.
func New(maxTokensPerMinute int) *Limiter {
	return &Limiter{
		maxTokensPerMinute: maxTokensPerMinute,
		currentTokens:      maxTokensPerMinute,
		lastRefill:         time.Now(),
	}
}

// Reserve withdraws tokens from the bucket, returning ErrRateLimit when the
// remaining budget cannot cover them. Reservations larger than the bucket
// itself are rejected outright since waiting would never help.
func (l *Limiter) Reserve(tokens int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if tokens > l.maxTokensPerMinute {
		return fmt.Errorf("%w: request of %d tokens exceeds per-minute budget of %d",
			ErrRateLimit, tokens, l.maxTokensPerMinute)
	}

	l.refill()
	if l.currentTokens < tokens {
		return ErrRateLimit
	}
	l.currentTokens -= tokens
	return nil
}

// Remaining returns the tokens currently available.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	return l.currentTokens
}

// Reset refills the bucket immediately.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.currentTokens = l.maxTokensPerMinute
	l.lastRefill = time.Now()
}

func (l *Limiter) refill() {
	elapsed := time.Since(l.lastRefill)
	if elapsed < time.Minute {
		return
	}

	minutes := int(elapsed / time.Minute)
	l.currentTokens += minutes * l.maxTokensPerMinute
	if l.currentTokens > l.maxTokensPerMinute {
		l.currentTokens = l.maxTokensPerMinute
	}
	// Advance by whole minutes only, so partial minutes keep accruing.
	l.lastRefill = l.lastRefill.Add(time.Duration(minutes) * time.Minute)
}
