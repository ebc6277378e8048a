package coordinator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/chronosdb/shardcoord/pkg/agencycache"
	"github.com/chronosdb/shardcoord/pkg/health"
	"github.com/chronosdb/shardcoord/pkg/supervision"
	"github.com/chronosdb/shardcoord/pkg/types"
)

// groupKey names one collection group by database and id, the unit Loop
// iterates over.
type groupKey struct {
	db  types.DatabaseName
	gid types.CollectionGroupID
}

// Database returns the key's database name.
func (k groupKey) Database() types.DatabaseName { return k.db }

// GroupID returns the key's collection group id.
func (k groupKey) GroupID() types.CollectionGroupID { return k.gid }

// ListGroups returns every collection group with a Target entry, in a
// stable order (grouped by database, then ascending id) so repeated runs
// visit groups in the same sequence.
func ListGroups(cache *agencycache.Cache) []groupKey {
	entries := cache.GetPrefix(prefixTargetGroups)
	keys := make([]groupKey, 0, len(entries))
	for path := range entries {
		db, gid, ok := parseGroupRoot(path)
		if !ok {
			continue
		}
		keys = append(keys, groupKey{db: db, gid: gid})
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].db != keys[j].db {
			return keys[i].db < keys[j].db
		}
		return keys[i].gid < keys[j].gid
	})
	return keys
}

// BuildHealth decodes the current Supervision/Health subtree.
func BuildHealth(cache *agencycache.Cache, view *health.View) types.ClusterHealth {
	entries := cache.GetPrefix(prefixHealth)
	return view.Build(entries, time.Now())
}

// BuildGroupState assembles everything supervision.Check needs to decide a
// single group's next action, reading the group's Target, its Plan (if
// any), every sheaf's replicated-log Target/Current, and every collection
// that names this group in its Target.
func BuildGroupState(cache *agencycache.Cache, db types.DatabaseName, gid types.CollectionGroupID, clusterHealth types.ClusterHealth) (supervision.GroupState, error) {
	var target types.CollectionGroupTarget
	raw, ok := cache.Get(groupTargetPath(db, gid))
	if !ok {
		return supervision.GroupState{}, errNoSuchGroup{db: db, gid: gid}
	}
	if err := json.Unmarshal(raw, &target); err != nil {
		return supervision.GroupState{}, err
	}

	g := supervision.GroupState{
		GroupID: gid,
		Target:  target,
		Health:  clusterHealth,
	}

	if planRaw, ok := cache.Get(groupPlanPath(db, gid)); ok {
		var plan types.CollectionGroupPlan
		if err := json.Unmarshal(planRaw, &plan); err != nil {
			return supervision.GroupState{}, err
		}
		g.Plan = &plan
		sheaves, err := buildSheafStates(cache, db, plan)
		if err != nil {
			return supervision.GroupState{}, err
		}
		g.Sheaves = sheaves
	}

	collections, err := buildCollectionStates(cache, db, target, g.Plan)
	if err != nil {
		return supervision.GroupState{}, err
	}
	g.Collections = collections
	return g, nil
}

func buildSheafStates(cache *agencycache.Cache, db types.DatabaseName, plan types.CollectionGroupPlan) ([]supervision.SheafState, error) {
	out := make([]supervision.SheafState, 0, len(plan.Sheaves))
	for _, sheaf := range plan.Sheaves {
		s := supervision.SheafState{Sheaf: sheaf}

		if raw, ok := cache.Get(logTargetPath(db, sheaf.LogID)); ok {
			if err := json.Unmarshal(raw, &s.LogTarget); err != nil {
				return nil, fmt.Errorf("coordinator: decode log target %d: %w", sheaf.LogID, err)
			}
		}
		if raw, ok := cache.Get(logCurrentSupervisionPath(db, sheaf.LogID)); ok {
			if err := json.Unmarshal(raw, &s.LogCurrent); err != nil {
				return nil, fmt.Errorf("coordinator: decode log current %d: %w", sheaf.LogID, err)
			}
		}
		s.CurrentServers = s.LogTarget.ParticipantServers()
		out = append(out, s)
	}
	return out, nil
}

func buildCollectionStates(cache *agencycache.Cache, db types.DatabaseName, target types.CollectionGroupTarget, plan *types.CollectionGroupPlan) ([]supervision.CollectionState, error) {
	seen := make(map[types.CollectionID]*supervision.CollectionState)

	for _, cid := range target.Collections {
		cs := &supervision.CollectionState{ID: cid, InTarget: true}
		if raw, ok := cache.Get(collectionTargetPath(db, cid)); ok {
			if err := json.Unmarshal(raw, &cs.Target); err != nil {
				return nil, fmt.Errorf("coordinator: decode collection target %d: %w", cid, err)
			}
		}
		seen[cid] = cs
	}

	if plan != nil {
		for _, cid := range plan.Collections {
			cs, ok := seen[cid]
			if !ok {
				cs = &supervision.CollectionState{ID: cid}
				seen[cid] = cs
			}
			cs.InPlan = true
			if raw, ok := cache.Get(collectionPlanPath(db, cid)); ok {
				if err := json.Unmarshal(raw, &cs.Plan); err != nil {
					return nil, fmt.Errorf("coordinator: decode collection plan %d: %w", cid, err)
				}
			}
		}
	}

	ids := make([]types.CollectionID, 0, len(seen))
	for cid := range seen {
		ids = append(ids, cid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]supervision.CollectionState, 0, len(ids))
	for _, cid := range ids {
		out = append(out, *seen[cid])
	}
	return out, nil
}

type errNoSuchGroup struct {
	db  types.DatabaseName
	gid types.CollectionGroupID
}

func (e errNoSuchGroup) Error() string {
	return "coordinator: no target entry for group " + string(e.db) + "/" + strconv.FormatUint(uint64(e.gid), 10)
}
