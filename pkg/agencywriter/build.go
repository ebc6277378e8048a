package agencywriter

import (
	"github.com/chronosdb/shardcoord/pkg/agency"
	"github.com/chronosdb/shardcoord/pkg/types"
)

// NewGroup is one collection group to create in Target.
type NewGroup struct {
	DB     types.DatabaseName
	Target types.CollectionGroupTarget
}

// GroupAddition emplaces a collection into an already-existing group.
// Collections is the group's full post-addition collection id list; the
// writer has no append primitive, so the caller computes it.
type GroupAddition struct {
	DB          types.DatabaseName
	GroupID     types.CollectionGroupID
	Collections []types.CollectionID
}

// NewLog is one replicated log to create in Target, backing a shard sheaf.
type NewLog struct {
	DB     types.DatabaseName
	Target types.LogTarget
}

// NewCollection is one collection to materialize in Plan. IsBuilding,
// Coordinator and CoordinatorRebootID are stamped by the writer, not the
// caller.
type NewCollection struct {
	DB   types.DatabaseName
	Plan types.CollectionPlan
}

// CreateRequest bundles everything one planner decision needs written
// atomically: zero or more new groups, additions to existing groups, the
// replicated logs backing new sheaves, and the collections themselves.
type CreateRequest struct {
	NewGroups       []NewGroup
	GroupAdditions  []GroupAddition
	NewLogs         []NewLog
	NewCollections  []NewCollection

	// PlannedServers is the union of every server this request assigns a
	// shard or log participant to, guarded against racing cleanout.
	PlannedServers types.ServerList

	ObservedPlanVersion uint64

	Coordinator         types.ServerID
	CoordinatorRebootID uint64
}

// BuildCreateTransaction builds the single atomic transaction that
// materializes a CreateRequest: one Plan/Version bump, one precondition per
// new entity's absence (or, for group additions, the target group's
// presence), and a cluster-wide guard against the planned servers
// overlapping a server mid-cleanout.
func BuildCreateTransaction(req CreateRequest) agency.Transaction {
	var txn agency.Transaction

	txn.Preconditions = append(txn.Preconditions,
		agency.PreconditionEquals(pathPlanVersion, req.ObservedPlanVersion),
		agency.PreconditionNoIntersection(pathCleanedServers, serverStrings(req.PlannedServers)),
		agency.PreconditionNoIntersection(pathToBeCleanedServers, serverStrings(req.PlannedServers)),
	)
	txn.Mutations = append(txn.Mutations, agency.MutationIncrementBy(pathPlanVersion, 1))

	for _, g := range req.NewGroups {
		path := groupTargetPath(g.DB, g.Target.ID)
		txn.Preconditions = append(txn.Preconditions, agency.PreconditionAbsent(path))
		txn.Mutations = append(txn.Mutations, agency.MutationSetValue(path, g.Target))
	}

	for _, a := range req.GroupAdditions {
		groupPath := groupTargetPath(a.DB, a.GroupID)
		txn.Preconditions = append(txn.Preconditions, agency.PreconditionExists(groupPath))
		txn.Mutations = append(txn.Mutations, agency.MutationSetValue(groupTargetCollectionsPath(a.DB, a.GroupID), a.Collections))
	}

	for _, l := range req.NewLogs {
		path := logTargetPath(l.DB, l.Target.ID)
		txn.Preconditions = append(txn.Preconditions, agency.PreconditionAbsent(path))
		txn.Mutations = append(txn.Mutations, agency.MutationSetValue(path, l.Target))
	}

	for _, c := range req.NewCollections {
		path := collectionPlanPath(c.DB, c.Plan.ID)
		plan := c.Plan
		plan.IsBuilding = true
		plan.Coordinator = req.Coordinator
		plan.CoordinatorRebootID = req.CoordinatorRebootID
		txn.Preconditions = append(txn.Preconditions, agency.PreconditionAbsent(path))
		txn.Mutations = append(txn.Mutations, agency.MutationSetValue(path, plan))
	}

	return txn
}

// BuildUndoTransaction deletes every partially placed Plan/Collections
// entry the matching CreateRequest wrote, preconditioned on each stored
// body still equaling exactly what the create wrote (isBuilding set) — a
// concurrent BuildFinishTransaction that already cleared isBuilding, or
// any other change to the entry, fails the precondition, so a live
// collection is never undone.
func BuildUndoTransaction(req CreateRequest) agency.Transaction {
	var txn agency.Transaction
	for _, c := range req.NewCollections {
		path := collectionPlanPath(c.DB, c.Plan.ID)
		plan := c.Plan
		plan.IsBuilding = true
		plan.Coordinator = req.Coordinator
		plan.CoordinatorRebootID = req.CoordinatorRebootID

		txn.Preconditions = append(txn.Preconditions, agency.PreconditionEquals(path, plan))
		txn.Mutations = append(txn.Mutations, agency.MutationDeleteKey(path))
	}
	return txn
}

// BuildFinishTransaction clears isBuilding on every collection a
// CreateRequest created, preconditioned on the stored body still matching
// exactly what was written — any concurrent modification (a repair, a
// schema change) aborts the finish and forces the creator to retry from a
// fresh read.
func BuildFinishTransaction(req CreateRequest) agency.Transaction {
	var txn agency.Transaction
	for _, c := range req.NewCollections {
		path := collectionPlanPath(c.DB, c.Plan.ID)
		plan := c.Plan
		plan.IsBuilding = true
		plan.Coordinator = req.Coordinator
		plan.CoordinatorRebootID = req.CoordinatorRebootID

		txn.Preconditions = append(txn.Preconditions, agency.PreconditionEquals(path, plan))

		finished := plan
		finished.IsBuilding = false
		txn.Mutations = append(txn.Mutations, agency.MutationSetValue(path, finished))
	}
	return txn
}

func serverStrings(servers types.ServerList) []string {
	out := make([]string, len(servers))
	for i, s := range servers {
		out[i] = string(s)
	}
	return out
}
