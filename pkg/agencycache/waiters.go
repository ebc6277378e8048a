package agencycache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// waiterSet lets callers block until the mirror has observed at least
// some index, without polling. notify wakes every waiter whose target
// has been reached; it never blocks on a slow waiter because each
// waiter's channel is buffered by one.
type waiterSet struct {
	mu      sync.Mutex
	waiters map[int]*indexWaiter
	next    int
}

type indexWaiter struct {
	target uint64
	ch     chan struct{}
}

func newWaiterSet() *waiterSet {
	return &waiterSet{waiters: make(map[int]*indexWaiter)}
}

func (s *waiterSet) notify(observed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, w := range s.waiters {
		if observed < w.target {
			continue
		}
		select {
		case w.ch <- struct{}{}:
		default:
		}
		delete(s.waiters, id)
	}
}

func (s *waiterSet) wait(ctx context.Context, target uint64, timeout time.Duration) error {
	s.mu.Lock()
	id := s.next
	s.next++
	w := &indexWaiter{target: target, ch: make(chan struct{}, 1)}
	s.waiters[id] = w
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.waiters, id)
		s.mu.Unlock()
	}()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeoutCh:
		return fmt.Errorf("agencycache: timed out waiting for index %d", target)
	}
}
