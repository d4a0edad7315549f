package chat

import (
	"context"
	"sync"
)

// sequencer serializes work per key in arrival order. Keys with no holder and
// no waiters are removed.
type sequencer struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	waiters []chan struct{}
}

func newSequencer() *sequencer {
	return &sequencer{slots: make(map[string]*slot)}
}

// Acquire blocks until the caller holds key, or ctx ends. The returned
// release must be called exactly once.
func (s *sequencer) Acquire(ctx context.Context, key string) (func(), error) {
	s.mu.Lock()
	sl, busy := s.slots[key]
	if !busy {
		s.slots[key] = &slot{}
		s.mu.Unlock()
		return s.releaser(key), nil
	}
	turn := make(chan struct{})
	sl.waiters = append(sl.waiters, turn)
	s.mu.Unlock()

	select {
	case <-turn:
		return s.releaser(key), nil
	case <-ctx.Done():
		s.mu.Lock()
		for i, w := range sl.waiters {
			if w == turn {
				sl.waiters = append(sl.waiters[:i], sl.waiters[i+1:]...)
				s.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		s.mu.Unlock()
		// Ownership was handed over while ctx ended; pass it on.
		s.release(key)
		return nil, ctx.Err()
	}
}

func (s *sequencer) releaser(key string) func() {
	var once sync.Once
	return func() { once.Do(func() { s.release(key) }) }
}

func (s *sequencer) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[key]
	if !ok {
		return
	}
	if len(sl.waiters) == 0 {
		delete(s.slots, key)
		return
	}
	next := sl.waiters[0]
	sl.waiters = sl.waiters[1:]
	close(next)
}

// size returns the number of keys currently held.
func (s *sequencer) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}
