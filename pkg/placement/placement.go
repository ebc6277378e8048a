// Package placement decides which servers hold which shards.
//
// Picking one node per container with a single least-loaded cursor
// isn't enough here: a shard needs a leader AND a set of followers
// that must themselves be evenly spread, so the distribution here
// walks two cursors (leader and follower) over the healthy server list instead
// of one — advancing them together keeps each server's leader count
// and follower count both within one of each other across the whole
// shard set, the same guarantee arangodb's EvenDistribution gives.
package placement

import (
	"fmt"
	"math/rand"

	"github.com/chronosdb/shardcoord/pkg/types"
)

// Result is the outcome of a placement decision.
type Result struct {
	// Shards maps shard id to its server list, leader first.
	Shards map[string]types.ServerList
	// UsedServers lists every server that was actually assigned to at
	// least one shard, in the order it was first used. A collection
	// whose distributeShardsLike prototype has fewer usable servers
	// than requested for a derived collection reuses this list instead
	// of recomputing a placement, mirroring EvenDistribution.cpp's
	// "used servers" side channel.
	UsedServers types.ServerList
}

// EvenDistributionRequest parameterizes EvenDistribution.
type EvenDistributionRequest struct {
	ShardIDs []string
	Servers  types.ServerList
	// Avoid names servers to exclude from consideration entirely (e.g.
	// servers mid-cleanout).
	Avoid types.ServerList
	ReplicationFactor types.ReplicationFactor
	// EnforceReplicationFactor, when true, fails the whole placement if
	// fewer than ReplicationFactor.N servers remain after removing
	// Avoid. When false, the placement silently uses as many as are
	// available.
	EnforceReplicationFactor bool
}

// EvenDistribution assigns shards across the request's servers (minus
// any in Avoid) using two rotating cursors: one picks each shard's
// leader, the other picks the starting point for that shard's
// followers. Both start at zero and advance by one shard, so they stay
// equal to each other shard over shard; this is deliberate, not an
// oversight — it guarantees that any two shards sharing a leader also
// share the same follower list, which distribute-shards-like repair
// relies on. The server list is shuffled once up front so repeated
// calls with the same inputs do not always favor the same servers.
func EvenDistribution(req EvenDistributionRequest) (Result, error) {
	rf := req.ReplicationFactor
	if rf.IsSatellite() {
		return SatelliteDistribution(req.ShardIDs, req.Servers)
	}

	healthy := subtract(req.Servers, req.Avoid)

	if rf.N <= 0 {
		return Result{}, fmt.Errorf("placement: replication factor must be positive, got %d", rf.N)
	}
	if len(healthy) < rf.N {
		if req.EnforceReplicationFactor {
			return Result{}, fmt.Errorf("placement: need %d healthy servers, have %d", rf.N, len(healthy))
		}
		if len(healthy) == 0 {
			return Result{}, fmt.Errorf("placement: no healthy servers available")
		}
		rf = types.ReplicationFactorN(len(healthy))
	}

	rand.Shuffle(len(healthy), func(i, j int) { healthy[i], healthy[j] = healthy[j], healthy[i] })

	shardIDs := req.ShardIDs
	shards := make(map[string]types.ServerList, len(shardIDs))
	used := make(map[types.ServerID]struct{})
	var usedOrder types.ServerList

	leaderIdx, followerIdx := 0, 0
	n := len(healthy)

	for _, shardID := range shardIDs {
		leader := healthy[leaderIdx%n]
		leaderIdx++

		servers := make(types.ServerList, 0, rf.N)
		servers = append(servers, leader)

		seen := map[types.ServerID]struct{}{leader: {}}
		cursor := followerIdx
		for len(servers) < rf.N {
			candidate := healthy[cursor%n]
			cursor++
			if _, dup := seen[candidate]; dup {
				continue
			}
			seen[candidate] = struct{}{}
			servers = append(servers, candidate)
		}
		followerIdx++

		shards[shardID] = servers
		for _, s := range servers {
			if _, ok := used[s]; !ok {
				used[s] = struct{}{}
				usedOrder = append(usedOrder, s)
			}
		}
	}

	return Result{Shards: shards, UsedServers: usedOrder}, nil
}

// SatelliteDistribution gives every shard every healthy server as a
// replica: a satellite collection is fully replicated, so there is no
// meaningful notion of "which subset" to choose.
func SatelliteDistribution(shardIDs []string, healthy types.ServerList) (Result, error) {
	if len(healthy) == 0 {
		return Result{}, fmt.Errorf("placement: no healthy servers available for satellite distribution")
	}

	shards := make(map[string]types.ServerList, len(shardIDs))
	leaderIdx := 0
	n := len(healthy)

	for _, shardID := range shardIDs {
		servers := make(types.ServerList, 0, n)
		leader := healthy[leaderIdx%n]
		leaderIdx++
		servers = append(servers, leader)
		for _, s := range healthy {
			if s != leader {
				servers = append(servers, s)
			}
		}
		shards[shardID] = servers
	}

	return Result{Shards: shards, UsedServers: healthy.Clone()}, nil
}

// LikeDistribution copies a prototype collection's shard-to-server
// assignment verbatim, in shard order, onto a new set of shard ids.
// It is used for distributeShardsLike: the derived collection's
// shards must land on exactly the same servers as the prototype's, so
// cross-collection joins stay co-located. protoShardIDs and
// shardIDs must be the same length and already in the matching order.
func LikeDistribution(protoShardIDs []string, protoShards map[string]types.ServerList, shardIDs []string) (Result, error) {
	if len(protoShardIDs) != len(shardIDs) {
		return Result{}, fmt.Errorf("placement: prototype has %d shards, target wants %d", len(protoShardIDs), len(shardIDs))
	}

	shards := make(map[string]types.ServerList, len(shardIDs))
	used := make(map[types.ServerID]struct{})
	var usedOrder types.ServerList

	for i, shardID := range shardIDs {
		servers, ok := protoShards[protoShardIDs[i]]
		if !ok {
			return Result{}, fmt.Errorf("placement: prototype shard %q has no server assignment", protoShardIDs[i])
		}
		shards[shardID] = servers.Clone()
		for _, s := range servers {
			if _, ok := used[s]; !ok {
				used[s] = struct{}{}
				usedOrder = append(usedOrder, s)
			}
		}
	}

	return Result{Shards: shards, UsedServers: usedOrder}, nil
}

// subtract returns a copy of servers with every entry in avoid removed.
func subtract(servers, avoid types.ServerList) types.ServerList {
	if len(avoid) == 0 {
		return servers.Clone()
	}
	skip := make(map[types.ServerID]struct{}, len(avoid))
	for _, s := range avoid {
		skip[s] = struct{}{}
	}
	out := make(types.ServerList, 0, len(servers))
	for _, s := range servers {
		if _, ok := skip[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// ReplicationFactorMatches reports whether a derived collection's
// replication factor is compatible with its distributeShardsLike
// prototype: they must match exactly, since the derived collection
// reuses the prototype's server lists unchanged.
func ReplicationFactorMatches(rf types.ReplicationFactor, protoReplicaCount int) bool {
	if rf.IsSatellite() {
		return false
	}
	return rf.N == protoReplicaCount
}
