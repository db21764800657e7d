package realtime

import (
	"sync"
	"time"
)

const (
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second
)

// RateLimiter admits at most limit events in any trailing window. It keeps
// the timestamps of the last limit admitted events in a ring; an event is
// admitted when the oldest of them has left the window.
type RateLimiter struct {
	mu     sync.Mutex
	stamps []time.Time
	oldest int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter falls back to defaults for non-positive limits and a nil clock.
func NewRateLimiter(limit int, window time.Duration, now func() time.Time) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		stamps: make([]time.Time, 0, limit),
		window: window,
		now:    now,
	}
}

// Allow reports whether an event happening now is admitted, recording it if so.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if len(r.stamps) < cap(r.stamps) {
		r.stamps = append(r.stamps, now)
		return true
	}
	if now.Sub(r.stamps[r.oldest]) < r.window {
		return false
	}
	r.stamps[r.oldest] = now
	r.oldest = (r.oldest + 1) % len(r.stamps)
	return true
}
