package provider

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket shared by every request a source makes in a
// run, so eleven tickers do not hit one host back to back.
type RateLimiter struct {
	mu             sync.Mutex
	tokens         int
	maxTokens      int
	refillInterval time.Duration
	lastRefill     time.Time
	now            func() time.Time
}

// NewRateLimiter allows maxTokens calls per refillInterval. A non-positive
// maxTokens disables limiting.
func NewRateLimiter(maxTokens int, refillInterval time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:         maxTokens,
		maxTokens:      maxTokens,
		refillInterval: refillInterval,
		lastRefill:     time.Now(),
		now:            time.Now,
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil || r.maxTokens <= 0 || r.refillInterval <= 0 {
		return ctx.Err()
	}
	for {
		r.mu.Lock()
		r.refill()
		if r.tokens > 0 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}
		wait := r.lastRefill.Add(r.refillInterval).Sub(r.now())
		r.mu.Unlock()

		if wait <= 0 {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Allow takes a token without waiting and reports whether one was free.
func (r *RateLimiter) Allow() bool {
	if r == nil || r.maxTokens <= 0 || r.refillInterval <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	if r.tokens == 0 {
		return false
	}
	r.tokens--
	return true
}

func (r *RateLimiter) refill() {
	elapsed := r.now().Sub(r.lastRefill)
	newTokens := int(elapsed / r.refillInterval)
	if newTokens > 0 {
		r.tokens = min(r.tokens+newTokens, r.maxTokens)
		r.lastRefill = r.lastRefill.Add(time.Duration(newTokens) * r.refillInterval)
	}
}
