package test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/chatrelay/store"
)

func TestConversationContextStore_Merge(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	sessionUID := uuid.NewString()

	empty, err := ts.GetConversationContext(ctx, sessionUID)
	require.NoError(t, err)
	assert.Empty(t, empty.Data)

	_, err = ts.MergeConversationContext(ctx, &store.MergeConversationContext{
		SessionUID: sessionUID,
		Data:       map[string]any{"language": "en", "city": "Paris"},
		UpdatedTs:  100,
	})
	require.NoError(t, err)

	merged, err := ts.MergeConversationContext(ctx, &store.MergeConversationContext{
		SessionUID: sessionUID,
		Data:       map[string]any{"city": "Lyon", "units": "metric"},
		UpdatedTs:  200,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"language": "en", "city": "Lyon", "units": "metric"}, merged.Data)
	assert.Equal(t, int64(200), merged.UpdatedTs)

	got, err := ts.GetConversationContext(ctx, sessionUID)
	require.NoError(t, err)
	assert.Equal(t, merged.Data, got.Data)

	// Reads bypassing the cache see the same blob.
	raw, err := ts.GetDriver().GetConversationContext(ctx, sessionUID)
	require.NoError(t, err)
	assert.Equal(t, merged.Data, raw.Data)
}

func TestConversationContextStore_ConcurrentMergesKeepAllKeys(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	sessionUID := uuid.NewString()

	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, err := ts.MergeConversationContext(ctx, &store.MergeConversationContext{
				SessionUID: sessionUID,
				Data:       map[string]any{key: true},
				UpdatedTs:  time.Now().Unix(),
			})
			assert.NoError(t, err)
		}(key)
	}
	wg.Wait()

	raw, err := ts.GetDriver().GetConversationContext(ctx, sessionUID)
	require.NoError(t, err)
	assert.Len(t, raw.Data, len(keys))
}
