package repository

import (
	"context"
	"sync"
	"time"

	"github.com/tutorlink/session-core/internal/domain"
)

// MemoryRevocationStore is an in-process revocation set for development and tests.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewMemoryRevocationStore returns an empty store.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{entries: make(map[string]time.Time)}
}

func (s *MemoryRevocationStore) Revoke(_ context.Context, entry domain.RevocationEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[entry.JTI]; exists {
		return false, nil
	}
	s.entries[entry.JTI] = entry.ExpiresAt
	return true, nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.entries[jti]
	return exists, nil
}

func (s *MemoryRevocationStore) Sweep(_ context.Context, now time.Time, batch int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for jti, expiresAt := range s.entries {
		if batch > 0 && removed >= batch {
			break
		}
		if !expiresAt.After(now) {
			delete(s.entries, jti)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored entries.
func (s *MemoryRevocationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
