package cache

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache_Eviction(t *testing.T) {
	c := NewLRUCache(2, time.Hour)

	c.Set("a", []byte("1"), 0)
	c.Set("b", []byte("2"), 0)
	// 访问 a，使 b 成为最久未使用
	_, ok := c.Get("a")
	require.True(t, ok)
	c.Set("c", []byte("3"), 0)

	_, ok = c.Get("b")
	assert.False(t, ok, "b should be evicted")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", string(v))
	assert.Equal(t, 2, c.Len())
}

func TestLRUCache_Expiration(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewLRUCache(10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("short", []byte("x"), time.Second)
	c.Set("long", []byte("y"), 0)

	now = now.Add(2 * time.Second)
	_, ok := c.Get("short")
	assert.False(t, ok)
	_, ok = c.Get("long")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, c.CleanupExpired())
	assert.Equal(t, 0, c.Len())
}

func TestLRUCache_Invalidate(t *testing.T) {
	c := NewLRUCache(10, time.Hour)
	c.Set("context:a", []byte("1"), 0)
	c.Set("context:b", []byte("2"), 0)
	c.Set("other", []byte("3"), 0)

	assert.Equal(t, 1, c.Invalidate("context:a"))
	assert.Equal(t, 0, c.Invalidate("missing"))
	assert.Equal(t, 1, c.Invalidate("context:*"))

	_, ok := c.Get("other")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestLRUCache_ConcurrentAccess(t *testing.T) {
	c := NewLRUCache(50, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("k%d", (worker*j)%80)
				c.Set(key, []byte("v"), 0)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}

func TestTiered_PromotesFromL2(t *testing.T) {
	ctx := context.Background()
	l1 := NewMemory(MemoryConfig{})
	l2 := NewMemory(MemoryConfig{})
	tiered := NewTiered(l1, l2)
	defer tiered.Close()

	require.NoError(t, l2.Set(ctx, "k", []byte("from-l2"), 0))

	v, ok := tiered.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "from-l2", string(v))

	v, ok = l1.Get(ctx, "k")
	require.True(t, ok, "L2 hit should be promoted to L1")
	assert.Equal(t, "from-l2", string(v))
}

func TestTiered_WritesAndInvalidatesBothTiers(t *testing.T) {
	ctx := context.Background()
	l1 := NewMemory(MemoryConfig{})
	l2 := NewMemory(MemoryConfig{})
	tiered := NewTiered(l1, l2)
	defer tiered.Close()

	require.NoError(t, tiered.Set(ctx, "k", []byte("v"), time.Minute))
	_, ok := l2.Get(ctx, "k")
	assert.True(t, ok)

	require.NoError(t, tiered.Invalidate(ctx, "k"))
	_, ok = l1.Get(ctx, "k")
	assert.False(t, ok)
	_, ok = l2.Get(ctx, "k")
	assert.False(t, ok)
}

func TestTiered_WithoutL2(t *testing.T) {
	ctx := context.Background()
	tiered := NewTiered(NewMemory(MemoryConfig{}), nil)
	defer tiered.Close()

	_, ok := tiered.Get(ctx, "missing")
	assert.False(t, ok)
	require.NoError(t, tiered.Set(ctx, "k", []byte("v"), 0))
	_, ok = tiered.Get(ctx, "k")
	assert.True(t, ok)
}

// TestRedis runs against a live server when REDIS_TEST_ADDR is set.
func TestRedis(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()

	r, err := NewRedis(ctx, &RedisConfig{Addr: addr, KeyPrefix: fmt.Sprintf("chatrelay-test-%d:", time.Now().UnixNano())})
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Set(ctx, "context:a", []byte("1"), time.Minute))
	require.NoError(t, r.Set(ctx, "context:b", []byte("2"), time.Minute))

	v, ok := r.Get(ctx, "context:a")
	require.True(t, ok)
	assert.Equal(t, "1", string(v))

	require.NoError(t, r.Invalidate(ctx, "context:*"))
	_, ok = r.Get(ctx, "context:b")
	assert.False(t, ok)
}
