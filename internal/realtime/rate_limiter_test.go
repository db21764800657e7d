package realtime

import (
	"testing"
	"time"
)

type manualClock struct{ t time.Time }

func (c *manualClock) now() time.Time          { return c.t }
func (c *manualClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRateLimiterSlidingWindow(t *testing.T) {
	clock := &manualClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(3, 10*time.Second, clock.now)

	for i := 0; i < 3; i++ {
		if !limiter.Allow() {
			t.Fatalf("event %d should be admitted", i)
		}
		clock.advance(time.Second)
	}
	if limiter.Allow() {
		t.Fatalf("fourth event inside the window must be rejected")
	}

	// The first event was at 0s; at 10s it has left the window.
	clock.advance(7 * time.Second)
	if !limiter.Allow() {
		t.Fatalf("event should be admitted once the oldest leaves the window")
	}
	if limiter.Allow() {
		t.Fatalf("second event at 10s must be rejected: events at 1s and 2s are still inside")
	}

	clock.advance(2 * time.Second)
	if !limiter.Allow() || !limiter.Allow() {
		t.Fatalf("both slots freed by the 1s and 2s events should be reusable at 12s")
	}
	if limiter.Allow() {
		t.Fatalf("window is full again at 12s")
	}
}

func TestRateLimiterDefaults(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	limiter := NewRateLimiter(0, 0, clock.now)
	for i := 0; i < rateLimitEvents; i++ {
		if !limiter.Allow() {
			t.Fatalf("event %d within the default limit was rejected", i)
		}
	}
	if limiter.Allow() {
		t.Fatalf("default limit of %d was not enforced", rateLimitEvents)
	}
	clock.advance(rateLimitWindow)
	if !limiter.Allow() {
		t.Fatalf("default window did not slide")
	}
}
