package currentwatcher

import (
	"context"
	"sync"
	"time"

	"github.com/chronosdb/shardcoord/pkg/agencycache"
)

const defaultPollInterval = 250 * time.Millisecond

// Result is the shared per-id outcome tally a Watcher's predicates
// populate. Safe for concurrent reads while the watcher keeps polling.
type Result struct {
	mu       sync.Mutex
	outcomes map[string]Outcome
	total    int
}

func newResult(total int) *Result {
	return &Result{outcomes: make(map[string]Outcome, total), total: total}
}

func (r *Result) set(id string, o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[id] = o
}

// ResultIfAllReported returns the first error outcome if any predicate has
// failed, OutcomeOK once every predicate has reported ok, or
// (OutcomePending, false) while some are still pending or unreported.
func (r *Result) ResultIfAllReported() (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	allOK := len(r.outcomes) >= r.total
	for _, o := range r.outcomes {
		if o == OutcomeError {
			return OutcomeError, true
		}
		if o != OutcomeOK {
			allOK = false
		}
	}
	if allOK {
		return OutcomeOK, true
	}
	return OutcomePending, false
}

// Watcher polls a set of predicates against an agencycache.Cache snapshot
// until every one of them reports ok or any one reports error.
type Watcher struct {
	cache      *agencycache.Cache
	predicates []Predicate
	result     *Result
}

// New builds a Watcher over the given predicates.
func New(cache *agencycache.Cache, predicates []Predicate) *Watcher {
	return &Watcher{cache: cache, predicates: predicates, result: newResult(len(predicates))}
}

// Poll evaluates every predicate once against the cache's current
// snapshot and folds the outcomes into the shared Result. A predicate
// that is still pending leaves no entry, so ResultIfAllReported keeps
// waiting for it.
func (w *Watcher) Poll() {
	for _, p := range w.predicates {
		switch o := p.Evaluate(w.cache); o {
		case OutcomeOK, OutcomeError:
			w.result.set(p.ID(), o)
		}
	}
}

// ResultIfAllReported exposes the shared Result's current verdict.
func (w *Watcher) ResultIfAllReported() (Outcome, bool) {
	return w.result.ResultIfAllReported()
}

// Wait polls until every predicate reports ok, any predicate reports
// error, or the context is done. The caller is responsible for rolling
// back a timed-out or errored create via the undo transaction.
func (w *Watcher) Wait(ctx context.Context, pollInterval time.Duration) (Outcome, error) {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	w.Poll()
	if o, done := w.ResultIfAllReported(); done {
		return o, nil
	}

	for {
		select {
		case <-ctx.Done():
			return OutcomePending, ctx.Err()
		case <-ticker.C:
			w.Poll()
			if o, done := w.ResultIfAllReported(); done {
				return o, nil
			}
		}
	}
}
