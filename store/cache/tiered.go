package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

// Tiered implements a two-tier caching strategy:
// - L1: in-memory cache (fast, per instance, always on)
// - L2: Redis cache (shared, optional)
//
// Reads fall through L1 to L2 and promote L2 hits. Writes and invalidations go
// to both tiers.
type Tiered struct {
	l1 Cache
	l2 Cache
}

// NewTiered creates a tiered cache. l2 may be nil.
func NewTiered(l1, l2 Cache) *Tiered {
	return &Tiered{l1: l1, l2: l2}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	if value, ok := t.l1.Get(ctx, key); ok {
		return value, true
	}
	if t.l2 == nil {
		return nil, false
	}
	value, ok := t.l2.Get(ctx, key)
	if !ok {
		return nil, false
	}
	_ = t.l1.Set(ctx, key, value, 0)
	return value, true
}

func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := t.l1.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if t.l2 != nil {
		if err := t.l2.Set(ctx, key, value, ttl); err != nil {
			slog.Warn("failed to write L2 cache", "key", key, "error", err)
		}
	}
	return nil
}

func (t *Tiered) Invalidate(ctx context.Context, pattern string) error {
	if err := t.l1.Invalidate(ctx, pattern); err != nil {
		return err
	}
	if t.l2 != nil {
		if err := t.l2.Invalidate(ctx, pattern); err != nil {
			return errors.Wrap(err, "failed to invalidate L2 cache")
		}
	}
	return nil
}

func (t *Tiered) Close() error {
	err := t.l1.Close()
	if t.l2 != nil {
		if l2Err := t.l2.Close(); l2Err != nil && err == nil {
			err = l2Err
		}
	}
	return err
}
