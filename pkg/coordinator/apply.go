package coordinator

import (
	"github.com/chronosdb/shardcoord/pkg/agency"
	"github.com/chronosdb/shardcoord/pkg/supervision"
	"github.com/chronosdb/shardcoord/pkg/types"
)

// BuildActionTransaction turns the single Action supervision.Check decided
// a group needs into the agency.Transaction that carries it out. It
// returns done=false for NoActionRequired/NoActionPossible, since neither
// writes anything.
//
// Every branch preconditions its write on the exact state Check read
// for that step: a group/log/collection write aborts instead of
// clobbering another writer (another coordinator, a repair job) if the
// state has since moved on.
func BuildActionTransaction(db types.DatabaseName, g supervision.GroupState, action supervision.Action) (txn agency.Transaction, done bool) {
	switch a := action.(type) {
	case supervision.AddCollectionGroupToPlan:
		return buildAddGroupTransaction(db, g, a), true

	case supervision.UpdateReplicatedLogConfig:
		path := logTargetPath(db, a.LogID)
		sheaf, _ := findSheafByLog(g, a.LogID)
		newTarget := sheaf.LogTarget
		newTarget.Config = a.Config
		txn.Preconditions = append(txn.Preconditions, agency.PreconditionEquals(path, sheaf.LogTarget))
		txn.Mutations = append(txn.Mutations, agency.MutationSetValue(path, newTarget))
		return txn, true

	case supervision.AddParticipantToLog:
		path := logTargetPath(db, a.LogID)
		sheaf, _ := findSheafByLog(g, a.LogID)
		newTarget := sheaf.LogTarget
		newTarget.Participants = append(append([]types.LogTargetParticipant{}, sheaf.LogTarget.Participants...),
			types.LogTargetParticipant{Server: a.Server})
		txn.Preconditions = append(txn.Preconditions, agency.PreconditionEquals(path, sheaf.LogTarget))
		txn.Mutations = append(txn.Mutations, agency.MutationSetValue(path, newTarget))
		return txn, true

	case supervision.RemoveParticipantFromLog:
		path := logTargetPath(db, a.LogID)
		sheaf, _ := findSheafByLog(g, a.LogID)
		newTarget := sheaf.LogTarget
		newTarget.Participants = removeParticipant(sheaf.LogTarget.Participants, a.Server)
		txn.Preconditions = append(txn.Preconditions, agency.PreconditionEquals(path, sheaf.LogTarget))
		txn.Mutations = append(txn.Mutations, agency.MutationSetValue(path, newTarget))
		return txn, true

	case supervision.AddCollectionToPlan:
		path := collectionPlanPath(db, a.Spec.ID)
		txn.Preconditions = append(txn.Preconditions, agency.PreconditionAbsent(path))
		txn.Mutations = append(txn.Mutations, agency.MutationSetValue(path, a.Spec))
		return txn, true

	case supervision.DropCollectionPlan:
		path := collectionPlanPath(db, a.CollectionID)
		txn.Preconditions = append(txn.Preconditions, agency.PreconditionExists(path))
		txn.Mutations = append(txn.Mutations, agency.MutationDeleteKey(path))
		return txn, true

	case supervision.UpdateCollectionShardMap:
		cs, _ := findCollectionState(g, a.CollectionID)
		path := collectionPlanPath(db, a.CollectionID)
		newPlan := cs.Plan
		newPlan.DeprecatedShardMap = a.Mapping
		txn.Preconditions = append(txn.Preconditions, agency.PreconditionEquals(path, cs.Plan))
		txn.Mutations = append(txn.Mutations, agency.MutationSetValue(path, newPlan))
		return txn, true

	case supervision.UpdateConvergedVersion:
		path := groupPlanPath(db, g.GroupID)
		newPlan := *g.Plan
		newPlan.ConvergedVersion = a.Version
		txn.Preconditions = append(txn.Preconditions, agency.PreconditionEquals(path, *g.Plan))
		txn.Mutations = append(txn.Mutations, agency.MutationSetValue(path, newPlan))
		return txn, true

	default:
		// NoActionRequired, NoActionPossible: nothing to write.
		return agency.Transaction{}, false
	}
}

func buildAddGroupTransaction(db types.DatabaseName, g supervision.GroupState, a supervision.AddCollectionGroupToPlan) agency.Transaction {
	var txn agency.Transaction
	groupPath := groupPlanPath(db, g.GroupID)
	txn.Preconditions = append(txn.Preconditions, agency.PreconditionAbsent(groupPath))
	txn.Mutations = append(txn.Mutations, agency.MutationSetValue(groupPath, a.Plan))

	for _, lt := range a.LogTargets {
		path := logTargetPath(db, lt.ID)
		txn.Preconditions = append(txn.Preconditions, agency.PreconditionAbsent(path))
		txn.Mutations = append(txn.Mutations, agency.MutationSetValue(path, lt))
	}
	return txn
}

func findSheafByLog(g supervision.GroupState, logID types.LogID) (supervision.SheafState, bool) {
	for _, s := range g.Sheaves {
		if s.Sheaf.LogID == logID {
			return s, true
		}
	}
	return supervision.SheafState{}, false
}

func findCollectionState(g supervision.GroupState, cid types.CollectionID) (supervision.CollectionState, bool) {
	for _, c := range g.Collections {
		if c.ID == cid {
			return c, true
		}
	}
	return supervision.CollectionState{}, false
}

func removeParticipant(in []types.LogTargetParticipant, server types.ServerID) []types.LogTargetParticipant {
	out := make([]types.LogTargetParticipant, 0, len(in))
	for _, p := range in {
		if p.Server == server {
			continue
		}
		out = append(out, p)
	}
	return out
}
