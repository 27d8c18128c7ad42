package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore implements Store and Counter in process memory. It backs tests
// and REDIS_URL-less development. go-cache provides the store-enforced TTL
// behavior: expired keys simply read as absent.
type MemoryStore struct {
	items    *cache.Cache
	mu       sync.Mutex
	counters map[string]int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:    cache.New(cache.NoExpiration, 5*time.Minute),
		counters: make(map[string]int64),
	}
}

// Get returns the value for key, or absent once its TTL has elapsed.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, found := s.items.Get(key)
	if !found {
		return nil, false, nil
	}
	data, ok := val.([]byte)
	if !ok {
		return nil, false, nil
	}
	// Copy so callers can't mutate the stored value.
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

// Put writes value under key. ttl <= 0 stores without expiry.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	if ttl <= 0 {
		s.items.Set(key, stored, cache.NoExpiration)
	} else {
		s.items.Set(key, stored, ttl)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.items.Delete(key)
	return nil
}

// List pages through keys under prefix in sorted order. The cursor is the
// last key of the previous page; pages are deterministic, unlike the Redis
// backend, which tests rely on only through the shared cursor-loop contract.
func (s *MemoryStore) List(_ context.Context, prefix, cursor string, limit int64) (Page, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var keys []string
	for key := range s.items.Items() {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	start := 0
	if cursor != "" {
		start = sort.SearchStrings(keys, cursor)
		if start < len(keys) && keys[start] == cursor {
			start++
		}
	}

	end := start + int(limit)
	if end >= len(keys) {
		return Page{Keys: keys[start:]}, nil
	}
	return Page{
		Keys:   keys[start:end],
		Cursor: keys[end-1],
	}, nil
}

// Incr atomically adjusts the counter at key and returns the new value.
func (s *MemoryStore) Incr(_ context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key] += delta
	return s.counters[key], nil
}

// Flush drops everything. Test helper.
func (s *MemoryStore) Flush() {
	s.items.Flush()
	s.mu.Lock()
	s.counters = make(map[string]int64)
	s.mu.Unlock()
}
