package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with in-process counters. Single-instance
// deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryCounter
	now     func() time.Time
}

type memoryCounter struct {
	value     int64
	expiresAt time.Time
}

// NewMemoryStore creates an in-process counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryCounter),
		now:     time.Now,
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || s.expired(e) {
		delete(s.entries, key)
		return 0, ErrKeyNotFound
	}
	return e.value, nil
}

// IncrementWithExpiry implements Store.
func (s *MemoryStore) IncrementWithExpiry(_ context.Context, key string, delta int64, expiration time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || s.expired(e) {
		e = &memoryCounter{expiresAt: s.now().Add(expiration)}
		s.entries[key] = e
	}
	e.value += delta
	return e.value, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.entries = make(map[string]*memoryCounter)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) expired(e *memoryCounter) bool {
	return !e.expiresAt.IsZero() && s.now().After(e.expiresAt)
}
