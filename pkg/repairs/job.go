package repairs

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chronosdb/shardcoord/pkg/agency"
	"github.com/chronosdb/shardcoord/pkg/types"
)

func collectionPlanPath(db types.DatabaseName, cid types.CollectionID) string {
	return fmt.Sprintf("Plan/Collections/%s/%d", db, cid)
}

// BuildBeginRepairsTransaction renames plan's distributeShardsLike to
// repairingDistributeShardsLike, preconditioned on plan's body still
// matching what the caller read.
func BuildBeginRepairsTransaction(db types.DatabaseName, plan types.CollectionPlan, action BeginRepairs) agency.Transaction {
	path := collectionPlanPath(db, action.CollectionID)
	next := plan
	next.RepairingDistributeShardsLike = action.ProtoCollectionID
	next.DistributeShardsLike = 0

	return agency.Transaction{
		Preconditions: []agency.Precondition{agency.PreconditionEquals(path, plan)},
		Mutations:     []agency.Mutation{agency.MutationSetValue(path, next)},
	}
}

// MoveShardJob is the Target/ToDo job body a MoveShard action is
// serialized to.
type MoveShardJob struct {
	Type        string             `json:"type"`
	Database    types.DatabaseName `json:"database"`
	Collection  types.CollectionID `json:"collection"`
	Shard       string             `json:"shard"`
	FromServer  types.ServerID     `json:"fromServer"`
	ToServer    types.ServerID     `json:"toServer"`
	JobID       types.JobID        `json:"jobId"`
	TimeCreated string             `json:"timeCreated"`
	Creator     types.ServerID     `json:"creator"`
	IsLeader    bool               `json:"isLeader"`
}

// BuildMoveShardTransaction serializes a MoveShard action into a
// Target/ToDo/<jobId> write, preconditioned on that path being empty. The
// job id is freshly generated, never agency-issued, since job ids need not
// be ordered the way collection/log ids are.
func BuildMoveShardTransaction(action MoveShard, creator types.ServerID, now time.Time) (agency.Transaction, types.JobID) {
	jobID := types.JobID(uuid.New().String())
	job := MoveShardJob{
		Type:        "moveShard",
		Database:    action.DB,
		Collection:  action.CollectionID,
		Shard:       action.Shard,
		FromServer:  action.From,
		ToServer:    action.To,
		JobID:       jobID,
		TimeCreated: now.UTC().Format(time.RFC3339),
		Creator:     creator,
		IsLeader:    action.IsLeader,
	}
	path := fmt.Sprintf("Target/ToDo/%s", jobID)
	return agency.Transaction{
		Preconditions: []agency.Precondition{agency.PreconditionAbsent(path)},
		Mutations:     []agency.Mutation{agency.MutationSetValue(path, job)},
	}, jobID
}

// BuildFixServerOrderTransaction reorders plan's stored server list for one
// shard to match action.ProtoFollowers, with no data movement: every server
// in the new order already holds the shard.
func BuildFixServerOrderTransaction(db types.DatabaseName, plan types.CollectionPlan, action FixServerOrder) agency.Transaction {
	path := collectionPlanPath(db, action.CollectionID)
	next := plan
	next.DeprecatedShardMap = cloneShardMap(plan.DeprecatedShardMap)

	ordered := make(types.ServerList, 0, len(action.ProtoFollowers)+1)
	ordered = append(ordered, action.Leader)
	ordered = append(ordered, action.ProtoFollowers...)
	next.DeprecatedShardMap[action.Shard] = ordered

	return agency.Transaction{
		Preconditions: []agency.Precondition{agency.PreconditionEquals(path, plan)},
		Mutations:     []agency.Mutation{agency.MutationSetValue(path, next)},
	}
}

// BuildFinishRepairsTransaction renames plan's repairingDistributeShardsLike
// back to distributeShardsLike and records every shard's converged server
// list, preconditioned on plan's body still matching what the caller read
// (so a concurrent modification aborts the finish and forces a re-plan).
func BuildFinishRepairsTransaction(db types.DatabaseName, plan types.CollectionPlan, action FinishRepairs) agency.Transaction {
	path := collectionPlanPath(db, action.CollectionID)
	next := plan
	next.DistributeShardsLike = action.ProtoCollectionID
	next.RepairingDistributeShardsLike = 0
	next.DeprecatedShardMap = cloneShardMap(plan.DeprecatedShardMap)
	for _, outcome := range action.Shards {
		next.DeprecatedShardMap[outcome.Shard] = outcome.Servers.Clone()
	}

	return agency.Transaction{
		Preconditions: []agency.Precondition{agency.PreconditionEquals(path, plan)},
		Mutations:     []agency.Mutation{agency.MutationSetValue(path, next)},
	}
}

func cloneShardMap(m map[string]types.ServerList) map[string]types.ServerList {
	out := make(map[string]types.ServerList, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}
