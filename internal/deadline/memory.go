package deadline

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and by deployments
// that run without Redis.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]time.Time)}
}

func (s *MemoryStore) Get(_ context.Context, key Key) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.entries[key.String()]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return at, nil
}

func (s *MemoryStore) Set(_ context.Context, key Key, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key.String()] = at
	return nil
}

func (s *MemoryStore) Del(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key.String())
	return nil
}
