package coordinator

import (
	"context"

	"github.com/chronosdb/shardcoord/pkg/agencycache"
)

// sliceIDSource adapts a pre-fetched batch of unique ids to
// supervision.IDSource, which (being called from a pure function) cannot
// itself return an error or block on an agency round trip.
type sliceIDSource struct {
	ids []uint64
	pos int
}

// NextID returns the next id in the batch. Running past the end of a
// correctly sized prefetch would be a coordinator bug, not a runtime
// condition to recover from, so it panics rather than silently returning
// stale or zero ids into written state.
func (s *sliceIDSource) NextID() uint64 {
	if s.pos >= len(s.ids) {
		panic("coordinator: id source exhausted; prefetch size computed incorrectly")
	}
	id := s.ids[s.pos]
	s.pos++
	return id
}

// PrefetchIDs reserves n cluster-unique ids up front and returns a
// supervision.IDSource over them. n should be sized generously enough for
// the single Check call it backs (worst case: one id per shard sheaf, for
// either a brand-new group or a freshly targeted collection).
func PrefetchIDs(ctx context.Context, alloc *agencycache.IDAllocator, n int) (*sliceIDSource, error) {
	if n <= 0 {
		n = 1
	}
	ids, err := alloc.Allocate(ctx, n)
	if err != nil {
		return nil, err
	}
	return &sliceIDSource{ids: ids}, nil
}
