package agencycache

import (
	"context"
	"fmt"
	"sync"

	"github.com/chronosdb/shardcoord/pkg/agency"
)

// latestIDPath is the agency counter every coordinator increments to
// claim a fresh batch of ids. It backs collection group ids, shard
// sheaf log ids and job ids alike: any caller that needs an id
// nobody else will ever hand out again calls Allocate.
const latestIDPath = "Sync/LatestID"

// defaultBatchSize is how many ids a single refill claims at once, so
// most Allocate calls are satisfied from the in-memory reservation
// instead of round-tripping through Raft.
const defaultBatchSize = 1000

// IDAllocator hands out globally unique uint64 ids backed by the
// agency's Sync/LatestID counter. A mutex-guarded in-memory reservation
// refills from the agency instead of generating locally, since ids
// must be unique cluster-wide.
type IDAllocator struct {
	client    agency.Client
	batchSize uint64

	mu   sync.Mutex
	next uint64
	high uint64 // exclusive upper bound of the current reservation
}

// NewIDAllocator builds an allocator that claims batches by atomically
// incrementing latestIDPath through client.
func NewIDAllocator(client agency.Client) *IDAllocator {
	return &IDAllocator{client: client, batchSize: defaultBatchSize}
}

// Allocate returns n freshly reserved, strictly increasing ids.
func (a *IDAllocator) Allocate(ctx context.Context, n int) ([]uint64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("agencycache: allocate requires n > 0, got %d", n)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ids := make([]uint64, 0, n)
	for len(ids) < n {
		if a.next >= a.high {
			if err := a.refillLocked(ctx, uint64(n-len(ids))); err != nil {
				return nil, err
			}
		}
		ids = append(ids, a.next)
		a.next++
	}
	return ids, nil
}

// refillLocked claims a new batch from the agency counter, sized to
// cover at least need ids. Caller must hold a.mu.
//
// The reserved range is derived from Increment's return value alone,
// never from a follow-up Read: the FSM computes that value atomically
// under the same Raft log entry that commits the increment, so two
// coordinators refilling concurrently (e.g. A claims 0->1000, B claims
// 1000->2000) each see their own post-increment counter and compute
// disjoint ranges. A separate Read after the increment would instead
// observe whichever counter value happened to be latest at read time,
// letting both callers derive the same range.
func (a *IDAllocator) refillLocked(ctx context.Context, need uint64) error {
	size := a.batchSize
	if need > size {
		size = need
	}

	newHigh, err := a.client.Increment(ctx, latestIDPath, int64(size))
	if err != nil {
		return fmt.Errorf("agencycache: refill id batch: %w", err)
	}

	a.high = uint64(newHigh)
	a.next = a.high - size
	return nil
}
