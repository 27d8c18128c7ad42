package store

import (
	"context"
	"time"
)

// Page is one page of a prefix enumeration. An empty Cursor means the
// enumeration is exhausted; any other value must be threaded into the next
// List call. A single List call is never assumed to be exhaustive.
type Page struct {
	Keys   []string
	Cursor string
}

// MaxListIterations bounds every cursor loop over List so that enumeration
// always makes forward progress even under adversarial key-count growth.
const MaxListIterations = 1000

// DefaultListLimit is the page size used when callers pass limit <= 0.
const DefaultListLimit = 100

// Store is the key-value contract the caching and timeline layers are built
// on. The backend is assumed eventually consistent with no transactions and
// no atomic multi-key operations. TTL expiry is store-enforced: reads of
// expired keys return absent without any explicit cleanup call.
type Store interface {
	// Get returns the value for key. Absence is (nil, false, nil), never an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put writes value under key. ttl <= 0 means no expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns up to limit keys under prefix starting at cursor.
	List(ctx context.Context, prefix, cursor string, limit int64) (Page, error)
}

// Counter is implemented by backends that support atomic counters. The cache
// statistics layer prefers this over read-modify-write on a shared document.
// Incr with delta 0 reads the current value.
type Counter interface {
	Incr(ctx context.Context, key string, delta int64) (int64, error)
}

// ListAll enumerates every key under prefix, threading the cursor until the
// store reports exhaustion or MaxListIterations pages have been read.
func ListAll(ctx context.Context, s Store, prefix string) ([]string, error) {
	var keys []string
	cursor := ""
	for i := 0; i < MaxListIterations; i++ {
		page, err := s.List(ctx, prefix, cursor, DefaultListLimit)
		if err != nil {
			return keys, err
		}
		keys = append(keys, page.Keys...)
		if page.Cursor == "" {
			return keys, nil
		}
		cursor = page.Cursor
	}
	return keys, nil
}
