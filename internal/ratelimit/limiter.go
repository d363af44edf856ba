package ratelimit

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/patrickwarner/adsimulator/internal/observability"
)

// Config holds the rate limiting settings for one endpoint.
type Config struct {
	Enabled    bool
	Capacity   int     // burst allowance per client
	RefillRate float64 // tokens per second per client
	// IdleTimeout drops buckets of clients that have been quiet this long.
	// Zero keeps them forever.
	IdleTimeout time.Duration
}

// Limiter keeps one token bucket per client key, created on first use.
//
//	limiter := NewLimiter("simulations", Config{Enabled: true, Capacity: 5, RefillRate: 0.1}, metrics)
//	if !limiter.Allow(clientIP) {
//	    // reject with 429
//	}
type Limiter struct {
	name    string
	config  Config
	metrics observability.MetricsRegistry
	now     func() time.Time

	mu        sync.RWMutex
	buckets   map[string]*TokenBucket
	lastPrune time.Time
}

// NewLimiter returns a limiter reporting rejections under name. A nil
// metrics registry disables reporting.
func NewLimiter(name string, config Config, metrics observability.MetricsRegistry) *Limiter {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Limiter{
		name:      name,
		config:    config,
		metrics:   metrics,
		now:       time.Now,
		buckets:   make(map[string]*TokenBucket),
		lastPrune: time.Now(),
	}
}

// Allow reports whether key may make another call. Disabled limiters and a
// nil *Limiter always allow.
func (l *Limiter) Allow(key string) bool {
	if l == nil || !l.config.Enabled {
		return true
	}

	l.mu.RLock()
	bucket, ok := l.buckets[key]
	l.mu.RUnlock()

	if !ok {
		l.mu.Lock()
		bucket, ok = l.buckets[key]
		if !ok {
			bucket = newTokenBucket(l.config.Capacity, l.config.RefillRate, l.now)
			l.buckets[key] = bucket
		}
		l.pruneLocked()
		l.mu.Unlock()
	}

	if bucket.Allow() {
		return true
	}
	l.metrics.IncrementRateLimited(l.name)
	return false
}

// pruneLocked drops idle buckets at most once per IdleTimeout. Callers hold
// mu for writing.
func (l *Limiter) pruneLocked() {
	if l.config.IdleTimeout <= 0 {
		return
	}
	now := l.now()
	if now.Sub(l.lastPrune) < l.config.IdleTimeout {
		return
	}
	l.lastPrune = now
	cutoff := now.Add(-l.config.IdleTimeout)
	for key, b := range l.buckets {
		if b.idleSince(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}

// Stats returns per-client counters sorted by key.
func (l *Limiter) Stats() []Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make([]Stats, 0, len(l.buckets))
	for key, b := range l.buckets {
		rejected, total := b.Stats()
		s := Stats{Key: key, Rejected: rejected, Total: total}
		if total > 0 {
			s.RejectRate = float64(rejected) / float64(total)
		}
		stats = append(stats, s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Key < stats[j].Key })
	return stats
}

// Stats describes one client's bucket.
type Stats struct {
	Key        string  `json:"key"`
	Rejected   int64   `json:"rejected"`
	Total      int64   `json:"total"`
	RejectRate float64 `json:"reject_rate"`
}

func (s Stats) String() string {
	return fmt.Sprintf("%s: %d/%d rejected (%.2f%%)", s.Key, s.Rejected, s.Total, s.RejectRate*100)
}
