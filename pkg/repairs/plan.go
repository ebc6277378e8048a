package repairs

import (
	"github.com/chronosdb/shardcoord/pkg/clustererrors"
	"github.com/chronosdb/shardcoord/pkg/shardid"
	"github.com/chronosdb/shardcoord/pkg/types"
)

// Collection is the slice of collection state Plan needs: identity, its
// declared replication factor (a satellite factor makes Plan return no
// actions, and N raises the number of healthy servers required; the moves
// themselves follow actual per-shard server counts), whether it is already
// mid-repair, and its current shard-to-server map.
type Collection struct {
	ID                types.CollectionID
	Name              string
	ReplicationFactor types.ReplicationFactor
	Repairing         bool
	Shards            map[string]types.ServerList
}

// Request parameterizes Plan.
type Request struct {
	DB      types.DatabaseName
	Follower Collection
	Proto    Collection
	// Healthy lists every healthy DB-server, used both to size-check the
	// requested replication and to stage the occasional leader/follower
	// swap through a free server.
	Healthy types.ServerList
}

// Plan computes the full sequence of actions needed to bring follower's
// shard placement in line with its distributeShardsLike prototype. It
// returns an empty, nil-error sequence when follower is already converged,
// or is a satellite collection (satellite placement is maintained by the
// even/satellite planner directly — repairs never touch it).
func Plan(req Request) ([]Action, error) {
	if req.Follower.ReplicationFactor.IsSatellite() {
		return nil, nil
	}

	followerShardIDs := shardid.SortedKeys(req.Follower.Shards)
	protoShardIDs := shardid.SortedKeys(req.Proto.Shards)
	if len(followerShardIDs) != len(protoShardIDs) {
		return nil, clustererrors.Newf(clustererrors.ClusterRepairsMismatchingShards,
			"collection %q has %d shards, prototype %q has %d",
			req.Follower.Name, len(followerShardIDs), req.Proto.Name, len(protoShardIDs))
	}
	if len(followerShardIDs) == 0 {
		return nil, nil
	}

	protoReplicaCount := len(req.Proto.Shards[protoShardIDs[0]])
	required := protoReplicaCount
	if req.Follower.ReplicationFactor.N > required {
		required = req.Follower.ReplicationFactor.N
	}
	if len(req.Healthy) < required {
		return nil, clustererrors.Newf(clustererrors.ClusterRepairsNotEnoughHealthy,
			"need %d healthy DB-servers to repair %q, have %d", required, req.Follower.Name, len(req.Healthy))
	}

	if req.Follower.Repairing {
		followerReplicaCount := len(req.Follower.Shards[followerShardIDs[0]])
		if followerReplicaCount != protoReplicaCount {
			return nil, clustererrors.Newf(clustererrors.ClusterRepairsReplicationFactorViolated,
				"replicationFactor is violated: collection %q and its distributeShardsLike prototype %q have %d and %d different (mismatching) DBServers, respectively",
				req.Follower.Name, req.Proto.Name, followerReplicaCount, protoReplicaCount)
		}
	}

	used := make(map[types.ServerID]struct{})
	for _, sid := range followerShardIDs {
		for _, s := range req.Follower.Shards[sid] {
			used[s] = struct{}{}
		}
	}
	var spare types.ServerList
	for _, s := range req.Healthy {
		if _, ok := used[s]; !ok {
			spare = append(spare, s)
		}
	}

	var ops []Action
	var finishes []ShardOutcome

	for i, sid := range followerShardIDs {
		protoSid := protoShardIDs[i]
		have := req.Follower.Shards[sid]
		want := req.Proto.Shards[protoSid]

		shardOps, final, err := planShard(req.DB, req.Follower.ID, req.Follower.Name, sid, protoSid, have, want, &spare)
		if err != nil {
			return nil, err
		}
		ops = append(ops, shardOps...)
		finishes = append(finishes, ShardOutcome{Shard: sid, ProtoShard: protoSid, Servers: final})
	}

	if len(ops) == 0 {
		return nil, nil
	}

	var out []Action
	if !req.Follower.Repairing {
		out = append(out, BeginRepairs{
			DB:                          req.DB,
			CollectionID:                req.Follower.ID,
			CollectionName:              req.Follower.Name,
			ProtoCollectionID:           req.Proto.ID,
			ProtoCollectionName:         req.Proto.Name,
			CollectionReplicationFactor: req.Follower.ReplicationFactor.N,
			ProtoReplicationFactor:      req.Proto.ReplicationFactor.N,
			RenameDistributeShardsLike:  true,
		})
	}
	out = append(out, ops...)
	out = append(out, FinishRepairs{
		DB:                  req.DB,
		CollectionID:        req.Follower.ID,
		CollectionName:      req.Follower.Name,
		ProtoCollectionID:   req.Proto.ID,
		ProtoCollectionName: req.Proto.Name,
		Shards:              finishes,
		ReplicationFactor:   protoReplicaCount,
	})
	return out, nil
}

// planShard computes the moves (and, if needed, the one FixServerOrder)
// that take a single shard from its current server list to want, plus the
// list's final, converged form (always equal to want once every returned
// action has been applied).
func planShard(db types.DatabaseName, cid types.CollectionID, cname, shard, protoShard string, have, want types.ServerList, spare *types.ServerList) ([]Action, types.ServerList, error) {
	if sameOrder(have, want) {
		return nil, have.Clone(), nil
	}

	cur := have.Clone()
	var ops []Action

	if cur[0] != want[0] {
		if idx := indexOf(cur, want[0]); idx >= 0 {
			if len(*spare) == 0 {
				return nil, nil, clustererrors.Newf(clustererrors.ClusterRepairsNotEnoughHealthy,
					"no free DB-server available to stage the leader swap for shard %q", shard)
			}
			temp := (*spare)[0]
			*spare = (*spare)[1:]

			ops = append(ops, MoveShard{DB: db, CollectionID: cid, CollectionName: cname, Shard: shard, From: want[0], To: temp, IsLeader: false})
			oldLeader := cur[0]
			cur[idx] = temp

			ops = append(ops, MoveShard{DB: db, CollectionID: cid, CollectionName: cname, Shard: shard, From: oldLeader, To: want[0], IsLeader: true})
			cur[0] = want[0]

			ops = append(ops, MoveShard{DB: db, CollectionID: cid, CollectionName: cname, Shard: shard, From: temp, To: oldLeader, IsLeader: false})
			cur[idx] = oldLeader
		} else {
			oldLeader := cur[0]
			ops = append(ops, MoveShard{DB: db, CollectionID: cid, CollectionName: cname, Shard: shard, From: oldLeader, To: want[0], IsLeader: true})
			cur[0] = want[0]
		}
	}

	curFollowers := cur.Followers()
	wantFollowers := want.Followers()

	var stale, missing types.ServerList
	for _, s := range curFollowers {
		if !wantFollowers.Contains(s) {
			stale = append(stale, s)
		}
	}
	for _, s := range wantFollowers {
		if !curFollowers.Contains(s) {
			missing = append(missing, s)
		}
	}
	if len(stale) != len(missing) {
		return nil, nil, clustererrors.Newf(clustererrors.ClusterRepairsMismatchingFollowers,
			"shard %q has %d followers to replace but %d replacement servers", shard, len(stale), len(missing))
	}

	result := make(types.ServerList, 0, len(curFollowers))
	for _, s := range curFollowers {
		if !contains(stale, s) {
			result = append(result, s)
		}
	}
	for i := range stale {
		ops = append(ops, MoveShard{DB: db, CollectionID: cid, CollectionName: cname, Shard: shard, From: stale[i], To: missing[i], IsLeader: false})
		result = append(result, missing[i])
	}

	if !sameOrder(result, wantFollowers) {
		ops = append(ops, FixServerOrder{
			DB: db, CollectionID: cid, CollectionName: cname,
			Shard: shard, ProtoShard: protoShard,
			Leader:         want[0],
			Followers:      append(types.ServerList{}, result...),
			ProtoFollowers: append(types.ServerList{}, wantFollowers...),
		})
	}

	return ops, want.Clone(), nil
}

func sameOrder(a, b types.ServerList) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func indexOf(list types.ServerList, id types.ServerID) int {
	for i, s := range list {
		if s == id {
			return i
		}
	}
	return -1
}

func contains(list types.ServerList, id types.ServerID) bool {
	return indexOf(list, id) >= 0
}
