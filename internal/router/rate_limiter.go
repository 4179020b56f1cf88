package router

import (
	"sync"
	"time"
)

// Defaults for the per-kind message ceiling.
const (
	DefaultRateWindow = time.Minute
	DefaultRateMax    = 30
)

// RateLimiter counts messages per (key, kind) in fixed windows. Buckets are
// created lazily and removed by Sweep once their window has expired.
type RateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	buckets map[bucketKey]*bucket
	now     func() time.Time
}

type bucketKey struct {
	key  string
	kind string
}

type bucket struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a limiter allowing max messages per window.
// Non-positive arguments fall back to the defaults.
func NewRateLimiter(window time.Duration, max int) *RateLimiter {
	if window <= 0 {
		window = DefaultRateWindow
	}
	if max <= 0 {
		max = DefaultRateMax
	}
	return &RateLimiter{
		window:  window,
		max:     max,
		buckets: make(map[bucketKey]*bucket),
		now:     time.Now,
	}
}

// Allow records one message for (key, kind) and reports whether it is within
// the ceiling. A rejected message does not count.
func (rl *RateLimiter) Allow(key, kind string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	k := bucketKey{key: key, kind: kind}

	b, exists := rl.buckets[k]
	if !exists || now.Sub(b.windowStart) >= rl.window {
		rl.buckets[k] = &bucket{count: 1, windowStart: now}
		return true
	}

	if b.count >= rl.max {
		return false
	}
	b.count++
	return true
}

// Sweep removes buckets whose window has expired and returns how many were
// removed. Call periodically.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for k, b := range rl.buckets {
		if now.Sub(b.windowStart) >= rl.window {
			delete(rl.buckets, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of live buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}
