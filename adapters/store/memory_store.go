package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/converse/core"
	"github.com/layer-3/converse/ports"
)

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// MemoryStore is an in-memory implementation of the KVStore interface,
// used for tests and single-instance deployments without Redis.
type MemoryStore struct {
	entries map[string]entry
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
	}
}

var _ ports.KVStore = (*MemoryStore)(nil)

// Set stores a value under key, replacing any previous entry.
func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)

		expiresAt := e.expiresAt
		go func() {
			time.Sleep(ttl)

			s.mu.Lock()
			defer s.mu.Unlock()

			// only delete if the entry has not been replaced since; a zero
			// expiresAt means the key was re-set without expiry and must stay
			if stored, exists := s.entries[key]; exists && !stored.expiresAt.IsZero() && !stored.expiresAt.After(expiresAt) {
				delete(s.entries, key)
			}
		}()
	}
	s.entries[key] = e

	return nil
}

// Get retrieves a value by key. Expired entries count as absent even if the
// cleanup goroutine has not run yet.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return "", core.ErrKeyNotFound
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		return "", core.ErrKeyNotFound
	}

	return e.value, nil
}

// Delete removes a key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}
