// Package cache provides the caches in front of conversation context reads.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented cache with TTLs.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns: value, whether it exists
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a value in cache. A zero ttl uses the cache default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Invalidate removes entries. pattern supports a trailing wildcard (context:*).
	Invalidate(ctx context.Context, pattern string) error

	Close() error
}
