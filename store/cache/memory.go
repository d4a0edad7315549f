package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryConfig configures the in-process cache.
type MemoryConfig struct {
	Capacity        int           // default: 1000
	DefaultTTL      time.Duration // default: 5 minutes
	CleanupInterval time.Duration // default: 1 minute
}

// Memory is the L1 cache: an LRU with a background sweep of expired entries.
type Memory struct {
	lru *LRUCache

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMemory creates the in-process cache and starts its cleanup loop.
func NewMemory(cfg MemoryConfig) *Memory {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Memory{
		lru:    NewLRUCache(cfg.Capacity, cfg.DefaultTTL),
		cancel: cancel,
	}

	m.wg.Add(1)
	go m.cleanupLoop(ctx, cfg.CleanupInterval)

	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	return m.lru.Get(key)
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.lru.Set(key, value, ttl)
	return nil
}

func (m *Memory) Invalidate(_ context.Context, pattern string) error {
	m.lru.Invalidate(pattern)
	return nil
}

// Close stops the cleanup loop.
func (m *Memory) Close() error {
	m.cancel()
	m.wg.Wait()
	return nil
}

func (m *Memory) cleanupLoop(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.lru.CleanupExpired()
		}
	}
}
