package supervision

import "github.com/chronosdb/shardcoord/pkg/types"

// SheafState is one shard sheaf's target/current state, as known when Check
// runs. Only populated once the owning group has a Plan.
type SheafState struct {
	Sheaf types.ShardSheaf
	// LogTarget is the sheaf's replicated log target entry.
	LogTarget types.LogTarget
	// LogCurrent is the supervision-reported progress of that log.
	LogCurrent types.LogCurrentSupervision
	// CurrentServers is the server list (leader first) the log currently
	// reports as serving this sheaf, used to refresh shard maps.
	CurrentServers types.ServerList
}

// CollectionState bundles one collection's Target and Plan membership, as
// referenced by a group's Target.Collections/Plan.Collections lists.
type CollectionState struct {
	ID       types.CollectionID
	InTarget bool
	InPlan   bool
	Target   types.CollectionTarget
	Plan     types.CollectionPlan
}

// GroupState bundles everything Check needs to decide a collection group's
// next action: its Target, its Plan (nil if not yet created), its sheaves'
// replicated-log state, and the collections that reference it.
type GroupState struct {
	GroupID     types.CollectionGroupID
	Target      types.CollectionGroupTarget
	Plan        *types.CollectionGroupPlan
	Sheaves     []SheafState
	Collections []CollectionState
	Health      types.ClusterHealth
}

// IDSource hands out cluster-unique 64-bit ids for newly created replicated
// logs. A real caller backs this with pkg/agencycache.IDAllocator; tests can
// use a plain counter.
type IDSource interface {
	NextID() uint64
}

// sheafByIndex finds the sheaf state for a given sheaf index, if present.
func (g GroupState) sheafByIndex(idx int) (SheafState, bool) {
	for _, s := range g.Sheaves {
		if s.Sheaf.Index == idx {
			return s, true
		}
	}
	return SheafState{}, false
}
