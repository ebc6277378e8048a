package repairs

import "github.com/chronosdb/shardcoord/pkg/types"

// Action is one step of a repair sequence.
type Action interface {
	isAction()
}

// BeginRepairs marks the start of a repair pass: distributeShardsLike is
// renamed to repairingDistributeShardsLike so no other planner touches this
// collection's placement while moves are in flight.
type BeginRepairs struct {
	DB                          types.DatabaseName
	CollectionID                types.CollectionID
	CollectionName              string
	ProtoCollectionID           types.CollectionID
	ProtoCollectionName         string
	CollectionReplicationFactor int
	ProtoReplicationFactor      int
	RenameDistributeShardsLike  bool
}

// MoveShard relocates one shard's replica from one server to another,
// emitted as a Target/ToDo job the addressed DB-servers execute.
type MoveShard struct {
	DB             types.DatabaseName
	CollectionID   types.CollectionID
	CollectionName string
	Shard          string
	From           types.ServerID
	To             types.ServerID
	IsLeader       bool
}

// FixServerOrder reorders a shard's follower list to match the prototype's
// follower order without moving any data: every server in Followers already
// holds the shard, only their order in Plan changes.
type FixServerOrder struct {
	DB                  types.DatabaseName
	CollectionID        types.CollectionID
	CollectionName      string
	ProtoCollectionID   types.CollectionID
	ProtoCollectionName string
	Shard               string
	ProtoShard          string
	Leader              types.ServerID
	Followers           types.ServerList
	ProtoFollowers      types.ServerList
}

// ShardOutcome is one shard's final, converged server list, reported by
// FinishRepairs.
type ShardOutcome struct {
	Shard      string
	ProtoShard string
	Servers    types.ServerList
}

// FinishRepairs ends a repair pass: repairingDistributeShardsLike is
// renamed back to distributeShardsLike and the converged shard server
// lists are recorded.
type FinishRepairs struct {
	DB                  types.DatabaseName
	CollectionID        types.CollectionID
	CollectionName      string
	ProtoCollectionID   types.CollectionID
	ProtoCollectionName string
	Shards              []ShardOutcome
	ReplicationFactor   int
}

func (BeginRepairs) isAction()   {}
func (MoveShard) isAction()      {}
func (FixServerOrder) isAction() {}
func (FinishRepairs) isAction()  {}
