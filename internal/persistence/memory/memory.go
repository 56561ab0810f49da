// Package memory provides an in-process keyed store used by tests and by
// development runs started without a database path.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/example/networking-rounds/internal/persistence"
)

// Store keeps entries in a map. Values are copied on the way in and out so
// callers never share buffers with the store.
type Store struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{entries: make(map[string][]byte)}
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.entries[key]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return cloneBytes(value), nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = cloneBytes(value)
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// GetByPrefix returns all entries whose key starts with prefix, sorted by key.
func (s *Store) GetByPrefix(ctx context.Context, prefix string) ([]persistence.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []persistence.Entry
	for key, value := range s.entries {
		if strings.HasPrefix(key, prefix) {
			result = append(result, persistence.Entry{Key: key, Value: cloneBytes(value)})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})
	return result, nil
}

// Len reports the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func cloneBytes(value []byte) []byte {
	if value == nil {
		return nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out
}
