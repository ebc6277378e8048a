package agency

import (
	"strings"
	"sync"
)

// watcherRegistry fans out "something under this prefix changed" after
// every committed transaction. It does not deliver values, only a
// wake-up; callers re-read the tree through Client.Read, a cheap-notify,
// expensive-reread split for cluster state changes.
type watcherRegistry struct {
	mu   sync.Mutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	prefix string
	ch     chan struct{}
}

func newWatcherRegistry() *watcherRegistry {
	return &watcherRegistry{subs: make(map[int]*subscription)}
}

// subscribe registers interest in prefix and returns a channel that
// receives a value (non-blocking, coalesced) whenever a transaction
// touches a path under prefix, plus a cancel function.
func (r *watcherRegistry) subscribe(prefix string) (<-chan struct{}, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.next
	r.next++
	sub := &subscription{prefix: normalizePath(prefix), ch: make(chan struct{}, 1)}
	r.subs[id] = sub

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
	return sub.ch, cancel
}

func (r *watcherRegistry) notify(touchedPaths []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range r.subs {
		if !anyUnderPrefix(touchedPaths, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- struct{}{}:
		default:
		}
	}
}

func anyUnderPrefix(paths []string, prefix string) bool {
	if prefix == "" {
		return len(paths) > 0
	}
	for _, p := range paths {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}
