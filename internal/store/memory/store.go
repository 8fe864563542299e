// Package memory implements an in-process key/value store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/linkmeta/internal/store"
)

// Store keeps values in a map guarded by a RWMutex.
type Store struct {
	mu         sync.RWMutex
	data       map[string][]byte
	maxEntries int
}

// Option configures a Store.
type Option func(*Store)

// WithMaxEntries caps the number of stored keys. Writes of new keys beyond the
// cap fail with store.ErrQuotaExceeded.
func WithMaxEntries(n int) Option {
	return func(s *Store) {
		s.maxEntries = n
	}
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{data: make(map[string][]byte)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a copy of the stored value.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of value.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; !exists && s.maxEntries > 0 && len(s.data) >= s.maxEntries {
		return store.ErrQuotaExceeded
	}
	s.data[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes key.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Keys returns matching keys in lexical order.
func (s *Store) Keys(_ context.Context, prefix string, limit int) ([]string, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

// Len reports the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
