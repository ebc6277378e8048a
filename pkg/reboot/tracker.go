// Package reboot tracks server reboot ids and fires a callback the
// first time a server restarts or drops out of the registered-servers
// set. Unlike a broadcast broker that notifies every subscriber on every
// event forever, each registration fires at most once and is then
// forgotten.
package reboot

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/chronosdb/shardcoord/pkg/log"
	"github.com/chronosdb/shardcoord/pkg/types"
)

// workerCount bounds how many callbacks can run concurrently: many
// callbacks, a small fixed pool of runners.
const workerCount = 4

// Tracker watches a population of servers' reboot ids and notifies
// registered callbacks the first time a watched server's reboot id
// advances or the server is deregistered entirely.
type Tracker struct {
	logger zerolog.Logger

	mu        sync.Mutex
	observed  map[types.ServerID]uint64
	callbacks map[types.ServerID]map[string]*registration

	workCh chan func()
	stopCh chan struct{}
	wg     sync.WaitGroup
}

type registration struct {
	baseline uint64
	fn       func()
}

// NewTracker builds a Tracker. Call Start before registering callbacks.
func NewTracker() *Tracker {
	return &Tracker{
		logger:    log.WithComponent("reboot"),
		observed:  make(map[types.ServerID]uint64),
		callbacks: make(map[types.ServerID]map[string]*registration),
		workCh:    make(chan func(), 256),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the dispatch worker pool.
func (t *Tracker) Start() {
	for i := 0; i < workerCount; i++ {
		t.wg.Add(1)
		go t.worker()
	}
}

// Stop halts dispatch. Callbacks already queued are still run.
func (t *Tracker) Stop() {
	close(t.stopCh)
	close(t.workCh)
	t.wg.Wait()
}

func (t *Tracker) worker() {
	defer t.wg.Done()
	for fn := range t.workCh {
		fn()
	}
}

// CallMeOnChange registers cb to fire exactly once: the next time peer
// is observed with a reboot id greater than currentRebootID, or the
// next time peer is absent from an UpdateObserved call. tag
// disambiguates multiple registrations against the same peer from the
// same caller; registering the same peer+tag twice replaces the
// earlier registration. The returned cancel function deregisters cb;
// calling it after cb has already fired is a harmless no-op.
func (t *Tracker) CallMeOnChange(peer types.ServerID, currentRebootID uint64, tag string, cb func()) (cancel func()) {
	t.mu.Lock()
	if t.callbacks[peer] == nil {
		t.callbacks[peer] = make(map[string]*registration)
	}
	t.callbacks[peer][tag] = &registration{baseline: currentRebootID, fn: cb}
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if regs, ok := t.callbacks[peer]; ok {
			delete(regs, tag)
			if len(regs) == 0 {
				delete(t.callbacks, peer)
			}
		}
	}
}

// UpdateObserved feeds the tracker the latest known reboot id for
// every currently registered server. Any server previously known that
// is absent from observed is treated as deregistered and fires every
// callback watching it. Dispatch always happens off t.mu: the
// fired-callback list is collected under lock, then handed to the
// worker pool after unlocking.
func (t *Tracker) UpdateObserved(observed map[types.ServerID]uint64) {
	t.mu.Lock()

	var fire []func()

	for peer, regs := range t.callbacks {
		newID, stillPresent := observed[peer]
		if !stillPresent {
			for tag, reg := range regs {
				fire = append(fire, reg.fn)
				delete(regs, tag)
			}
			delete(t.callbacks, peer)
			continue
		}
		for tag, reg := range regs {
			if newID > reg.baseline {
				fire = append(fire, reg.fn)
				delete(regs, tag)
			}
		}
		if len(regs) == 0 {
			delete(t.callbacks, peer)
		}
	}

	t.observed = observed
	t.mu.Unlock()

	for _, fn := range fire {
		fn := fn
		select {
		case t.workCh <- fn:
		case <-t.stopCh:
			return
		}
	}
}

// PendingCount returns how many callback registrations are still
// armed, for diagnostics and tests.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, regs := range t.callbacks {
		n += len(regs)
	}
	return n
}
