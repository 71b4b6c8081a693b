package cachestore

import (
	"context"
	"sync"
)

// Memory implements Store with an in-process map. Used by unit tests and
// dry runs; entries do not survive a restart.
type Memory struct {
	counters
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

func memKey(category, key string) string {
	return category + "/" + key
}

// Get retrieves an entry.
func (s *Memory) Get(ctx context.Context, category, key string) ([]byte, bool) {
	s.mu.RLock()
	value, ok := s.entries[memKey(category, key)]
	s.mu.RUnlock()

	if !ok {
		s.miss()
		return nil, false
	}
	s.hit()

	out := make([]byte, len(value))
	copy(out, value)
	return out, true
}

// Put stores an entry, overwriting any previous value for the key.
func (s *Memory) Put(ctx context.Context, category, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	s.entries[memKey(category, key)] = stored
	s.mu.Unlock()
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Memory) Close() error {
	return nil
}
