package repository

import (
	"context"
	"sync"
	"time"

	"github.com/tutorlink/session-core/internal/domain"
)

type attemptWindow struct {
	count int
	start time.Time
}

// MemoryAttemptStore counts login attempts per key in process memory.
type MemoryAttemptStore struct {
	mu      sync.Mutex
	windows map[string]*attemptWindow
	window  time.Duration
}

// NewMemoryAttemptStore returns an empty counter set.
func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{windows: make(map[string]*attemptWindow)}
}

// Attempt checks and counts under one lock. A key already at max is rejected
// without being counted; the window restarts once it has fully elapsed.
func (s *MemoryAttemptStore) Attempt(_ context.Context, key string, max int, window time.Duration, now time.Time) (domain.AttemptResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.window = window
	w, ok := s.windows[key]
	if !ok || !now.Before(w.start.Add(window)) {
		s.windows[key] = &attemptWindow{count: 1, start: now}
		return domain.AttemptResult{Allowed: true, Count: 1}, nil
	}
	if w.count >= max {
		return domain.AttemptResult{Allowed: false, Count: w.count, RetryAfter: w.start.Add(window).Sub(now)}, nil
	}
	w.count++
	return domain.AttemptResult{Allowed: true, Count: w.count}, nil
}

func (s *MemoryAttemptStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// Sweep drops windows that have fully elapsed.
func (s *MemoryAttemptStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.window <= 0 {
		return 0, nil
	}
	removed := 0
	for key, w := range s.windows {
		if !now.Before(w.start.Add(s.window)) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of tracked keys.
func (s *MemoryAttemptStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
