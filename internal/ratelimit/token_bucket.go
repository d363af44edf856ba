// Package ratelimit throttles expensive API calls per client with token
// buckets.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket allows bursts up to capacity and refills continuously at
// refillRate tokens per second. Each call to Allow spends one token.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64
	lastRefill time.Time
	lastUsed   time.Time
	now        func() time.Time

	rejected int64
	total    int64
}

// NewTokenBucket returns a full bucket.
func NewTokenBucket(capacity int, refillRate float64) *TokenBucket {
	return newTokenBucket(capacity, refillRate, time.Now)
}

func newTokenBucket(capacity int, refillRate float64, now func() time.Time) *TokenBucket {
	t := now()
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: t,
		lastUsed:   t,
		now:        now,
	}
}

// Allow spends a token if one is available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.total++
	tb.refill()
	tb.lastUsed = tb.lastRefill
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	tb.rejected++
	return false
}

// refill credits the time since the last call. Fractions carry over so slow
// refill rates still make progress. Callers hold mu.
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.lastRefill = now
	if elapsed <= 0 {
		return
	}
	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
}

// idleSince reports whether Allow has not been called since t.
func (tb *TokenBucket) idleSince(t time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastUsed.Before(t)
}

// Stats returns how many calls were rejected out of the total seen.
func (tb *TokenBucket) Stats() (rejected, total int64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.rejected, tb.total
}
