package clusterinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/chronosdb/shardcoord/pkg/agencycache"
	"github.com/chronosdb/shardcoord/pkg/clustererrors"
	"github.com/chronosdb/shardcoord/pkg/reboot"
	"github.com/chronosdb/shardcoord/pkg/shardid"
	"github.com/chronosdb/shardcoord/pkg/types"
)

// Info is the cache-backed cluster read facade.
type Info struct {
	cache  *agencycache.Cache
	reboot *reboot.Tracker
	ids    *agencycache.IDAllocator
}

// New builds an Info over an already-started cache.
func New(cache *agencycache.Cache, rebootTracker *reboot.Tracker, ids *agencycache.IDAllocator) *Info {
	return &Info{cache: cache, reboot: rebootTracker, ids: ids}
}

// GetCollection returns a collection's Plan entry, looked up by numeric id
// or by name within db.
func (ci *Info) GetCollection(db types.DatabaseName, cidOrName string) (types.CollectionPlan, error) {
	plan, ok := ci.GetCollectionNT(db, cidOrName)
	if !ok {
		return types.CollectionPlan{}, clustererrors.Newf(clustererrors.ClusterDataSourceNotFound, "collection %q not found in database %q", cidOrName, db)
	}
	return plan, nil
}

// GetCollectionNT is the non-throwing form of GetCollection.
func (ci *Info) GetCollectionNT(db types.DatabaseName, cidOrName string) (types.CollectionPlan, bool) {
	if cid, err := strconv.ParseUint(cidOrName, 10, 64); err == nil {
		raw, ok := ci.cache.Get(collectionPlanPath(db, types.CollectionID(cid)))
		if !ok {
			return types.CollectionPlan{}, false
		}
		var plan types.CollectionPlan
		if err := json.Unmarshal(raw, &plan); err != nil {
			return types.CollectionPlan{}, false
		}
		return plan, true
	}

	prefix := fmt.Sprintf("Plan/Collections/%s", db)
	for path, raw := range ci.cache.GetPrefix(prefix) {
		if !isCollectionRoot(path) {
			continue
		}
		var plan types.CollectionPlan
		if err := json.Unmarshal(raw, &plan); err != nil {
			continue
		}
		if plan.Name == cidOrName {
			return plan, true
		}
	}
	return types.CollectionPlan{}, false
}

// GetCollectionCurrent returns a collection's reported per-shard Current
// entries, keyed by shard id.
func (ci *Info) GetCollectionCurrent(db types.DatabaseName, cid types.CollectionID) (map[string]types.CurrentShardEntry, error) {
	prefix := fmt.Sprintf("Current/Collections/%s/%d", db, cid)
	entries := ci.cache.GetPrefix(prefix)
	if len(entries) == 0 {
		return nil, clustererrors.Newf(clustererrors.ClusterDataSourceNotFound, "no current state reported for collection %d", cid)
	}

	out := make(map[string]types.CurrentShardEntry, len(entries))
	for path, raw := range entries {
		shardID := path[len(prefix)+1:]
		var entry types.CurrentShardEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		out[shardID] = entry
	}
	return out, nil
}

// GetShardList returns a collection's shard ids in version-sort order.
func (ci *Info) GetShardList(db types.DatabaseName, cid types.CollectionID) ([]string, error) {
	plan, err := ci.GetCollection(db, strconv.FormatUint(uint64(cid), 10))
	if err != nil {
		return nil, err
	}
	return shardid.SortedKeys(plan.DeprecatedShardMap), nil
}

// GetResponsibleServer returns the server list (leader first) responsible
// for a shard.
func (ci *Info) GetResponsibleServer(db types.DatabaseName, cid types.CollectionID, shardID string) (types.ServerList, error) {
	servers, ok := ci.GetResponsibleServerNoDelay(db, cid, shardID)
	if !ok {
		return nil, clustererrors.Newf(clustererrors.ClusterDataSourceNotFound, "shard %q of collection %d has no server assignment", shardID, cid)
	}
	return servers, nil
}

// GetResponsibleServerNoDelay is the non-throwing, never-blocking form of
// GetResponsibleServer: it returns (nil, false) immediately during
// failover instead of waiting for a fresher read.
func (ci *Info) GetResponsibleServerNoDelay(db types.DatabaseName, cid types.CollectionID, shardID string) (types.ServerList, bool) {
	plan, ok := ci.GetCollectionNT(db, strconv.FormatUint(uint64(cid), 10))
	if !ok {
		return nil, false
	}
	servers, ok := plan.DeprecatedShardMap[shardID]
	if !ok {
		return nil, false
	}
	return servers.Clone(), true
}

// GetLeaderForShard returns a shard's current leader.
func (ci *Info) GetLeaderForShard(db types.DatabaseName, cid types.CollectionID, shardID string) (types.ServerID, error) {
	servers, err := ci.GetResponsibleServer(db, cid, shardID)
	if err != nil {
		return "", err
	}
	return servers.Leader(), nil
}

// GetLeadersForShards batch-resolves leaders for every shard id given.
func (ci *Info) GetLeadersForShards(db types.DatabaseName, cid types.CollectionID, shardIDs []string) (map[string]types.ServerID, error) {
	out := make(map[string]types.ServerID, len(shardIDs))
	for _, id := range shardIDs {
		leader, err := ci.GetLeaderForShard(db, cid, id)
		if err != nil {
			return nil, err
		}
		out[id] = leader
	}
	return out, nil
}

// GetResponsibleServers resolves a leader per shard id, the same way
// GetLeadersForShards does: because every shard in a shard group shares
// its sheaf's placement, shards that belong to the same group are
// naturally assigned the same leader already, with no extra consistency
// pass needed here.
func (ci *Info) GetResponsibleServers(db types.DatabaseName, cid types.CollectionID, shardIDs []string) (map[string]types.ServerID, error) {
	return ci.GetLeadersForShards(db, cid, shardIDs)
}

// RebootTracker exposes the shared reboot tracker.
func (ci *Info) RebootTracker() *reboot.Tracker {
	return ci.reboot
}

// Uniqid reserves n consecutive cluster-unique ids.
func (ci *Info) Uniqid(ctx context.Context, n int) ([]uint64, error) {
	return ci.ids.Allocate(ctx, n)
}

func collectionPlanPath(db types.DatabaseName, cid types.CollectionID) string {
	return fmt.Sprintf("Plan/Collections/%s/%d", db, cid)
}

// isCollectionRoot reports whether path is exactly a collection's own
// entry, not one of its "/shards/..." or "/isBuilding" children.
func isCollectionRoot(path string) bool {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			_, err := strconv.ParseUint(path[i+1:], 10, 64)
			return err == nil
		}
	}
	return false
}
