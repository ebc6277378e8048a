package supervision

import "github.com/chronosdb/shardcoord/pkg/types"

// Action is the single next step Check decided a collection group needs.
// Exactly one concrete type is ever returned;
// pkg/coordinator.BuildActionTransaction switches on it to build the
// corresponding transaction.
type Action interface {
	isAction()
}

// AddCollectionGroupToPlan creates a brand-new group in Plan, along with the
// replicated logs backing each of its shard sheaves.
type AddCollectionGroupToPlan struct {
	Plan       types.CollectionGroupPlan
	LogTargets []types.LogTarget
}

// UpdateReplicatedLogConfig rewrites a sheaf's log target config to match
// the group's current write-concern/replication-factor/waitForSync.
type UpdateReplicatedLogConfig struct {
	LogID  types.LogID
	Config types.LogConfig
}

// AddParticipantToLog adds one more server to a log's target participant
// set, because it currently has fewer than the group's replication factor.
type AddParticipantToLog struct {
	LogID  types.LogID
	Server types.ServerID
}

// RemoveParticipantFromLog drops one server from a log's target participant
// set, because it currently has more than the group's replication factor.
type RemoveParticipantFromLog struct {
	LogID  types.LogID
	Server types.ServerID
}

// AddCollectionToPlan creates a collection's Plan entry for a collection
// that is already in Target but has not been planned yet.
type AddCollectionToPlan struct {
	Spec types.CollectionPlan
}

// DropCollectionPlan removes a collection's Plan entry for a collection
// that has been removed from Target.
type DropCollectionPlan struct {
	CollectionID types.CollectionID
}

// UpdateCollectionShardMap rewrites a collection's deprecated shard map to
// match the servers its sheaves currently report.
type UpdateCollectionShardMap struct {
	CollectionID types.CollectionID
	Mapping      map[string]types.ServerList
}

// UpdateConvergedVersion records that every replicated log in the group has
// caught up to the target version.
type UpdateConvergedVersion struct {
	Version uint64
}

// NoActionRequired means the group is fully converged.
type NoActionRequired struct{}

// NoActionPossible means the group is not converged, but no step can make
// progress right now (e.g. no healthy server left to add as a participant).
type NoActionPossible struct {
	Reason string
}

func (AddCollectionGroupToPlan) isAction()  {}
func (UpdateReplicatedLogConfig) isAction() {}
func (AddParticipantToLog) isAction()       {}
func (RemoveParticipantFromLog) isAction()  {}
func (AddCollectionToPlan) isAction()       {}
func (DropCollectionPlan) isAction()        {}
func (UpdateCollectionShardMap) isAction()  {}
func (UpdateConvergedVersion) isAction()    {}
func (NoActionRequired) isAction()          {}
func (NoActionPossible) isAction()          {}
