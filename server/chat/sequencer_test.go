package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequencerFIFO(t *testing.T) {
	s := newSequencer()
	ctx := context.Background()

	release, err := s.Acquire(ctx, "k")
	require.NoError(t, err)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := s.Acquire(ctx, "k")
			require.NoError(t, err)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			r()
		}(i)
		// 等待前一个 goroutine 进入队列，确保入队顺序
		require.Eventually(t, func() bool {
			s.mu.Lock()
			defer s.mu.Unlock()
			return len(s.slots["k"].waiters) == i+1
		}, time.Second, time.Millisecond)
	}

	release()
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.Equal(t, 0, s.size())
}

func TestSequencerIndependentKeys(t *testing.T) {
	s := newSequencer()
	ctx := context.Background()

	releaseA, err := s.Acquire(ctx, "a")
	require.NoError(t, err)
	releaseB, err := s.Acquire(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, s.size())

	releaseA()
	releaseB()
	assert.Equal(t, 0, s.size())
}

func TestSequencerCancelledWaiter(t *testing.T) {
	s := newSequencer()
	release, err := s.Acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = s.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The abandoned waiter must not keep the key busy.
	release()
	assert.Equal(t, 0, s.size())

	r, err := s.Acquire(context.Background(), "k")
	require.NoError(t, err)
	r()
	r() // release is idempotent
	assert.Equal(t, 0, s.size())
}
