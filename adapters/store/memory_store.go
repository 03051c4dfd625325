package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/internal/clock"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// MemoryStore is an in-memory implementation of ports.KV.
// Expired keys are purged when read.
type MemoryStore struct {
	clock clock.Clock
	data  map[string]memoryEntry
	mu    sync.Mutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.Real()
	}
	return &MemoryStore{
		clock: c,
		data:  make(map[string]memoryEntry),
	}
}

// Set stores a copy of value
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = s.clock.Now().Add(ttl)
	}
	s.data[key] = entry
	return nil
}

// Get returns a copy of the stored value
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[key]
	if !ok {
		return nil, core.ErrNotFound
	}
	if !entry.expiresAt.IsZero() && !s.clock.Now().Before(entry.expiresAt) {
		delete(s.data, key)
		return nil, core.ErrNotFound
	}
	return append([]byte(nil), entry.value...), nil
}

// Delete removes a key
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Len returns the number of stored keys, expired ones included
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
