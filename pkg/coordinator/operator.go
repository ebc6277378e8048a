package coordinator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chronosdb/shardcoord/pkg/agency"
	"github.com/chronosdb/shardcoord/pkg/types"
)

// GroupDefaults carries the attributes a brand-new collection group is
// created with, the first time one of its member collections is
// requested. They are ignored if the group already exists.
type GroupDefaults struct {
	NumberOfShards    int
	ReplicationFactor types.ReplicationFactor
	WriteConcern      int
	WaitForSync       bool
}

// RequestCollection is the operator-facing write path: it declares that
// collection cid should exist in group gid of database db, creating the
// group's Target entry with defaults if this is the group's first
// collection, and always bumping the group's Target.Version so
// supervision.Check notices the change and drives convergence.
//
// It does not touch Plan; pkg/supervision and pkg/coordinator.Loop do that
// asynchronously once they observe the new Target entry.
func RequestCollection(ctx context.Context, node *agency.Node, db types.DatabaseName, gid types.CollectionGroupID, defaults GroupDefaults, coll types.CollectionTarget) (uint64, error) {
	var txn agency.Transaction

	entries, _, err := node.Read(groupTargetPath(db, gid))
	if err != nil {
		return 0, fmt.Errorf("coordinator: read group target: %w", err)
	}

	raw, exists := entries[groupTargetPath(db, gid)]
	var target types.CollectionGroupTarget
	if exists {
		if err := json.Unmarshal(raw, &target); err != nil {
			return 0, fmt.Errorf("coordinator: decode group target: %w", err)
		}
		txn.Preconditions = append(txn.Preconditions, agency.PreconditionEquals(groupTargetPath(db, gid), target))
	} else {
		target = types.CollectionGroupTarget{
			ID:                gid,
			NumberOfShards:    defaults.NumberOfShards,
			ReplicationFactor: defaults.ReplicationFactor,
			WriteConcern:      defaults.WriteConcern,
			WaitForSync:       defaults.WaitForSync,
		}
		txn.Preconditions = append(txn.Preconditions, agency.PreconditionAbsent(groupTargetPath(db, gid)))
	}

	for _, existingID := range target.Collections {
		if existingID == coll.ID {
			return 0, fmt.Errorf("coordinator: collection %d already targeted in group %d", coll.ID, gid)
		}
	}
	target.Collections = append(target.Collections, coll.ID)
	target.Version++

	coll.GroupID = gid
	txn.Preconditions = append(txn.Preconditions, agency.PreconditionAbsent(collectionTargetPath(db, coll.ID)))
	txn.Mutations = append(txn.Mutations,
		agency.MutationSetValue(groupTargetPath(db, gid), target),
		agency.MutationSetValue(collectionTargetPath(db, coll.ID), coll),
	)

	return node.Apply(ctx, txn)
}

// DropCollection removes a collection from its group's Target, the
// operator-facing counterpart to supervision's DropCollectionPlan action:
// Check notices the collection is no longer in Target and retires its Plan
// entry.
func DropCollection(ctx context.Context, node *agency.Node, db types.DatabaseName, gid types.CollectionGroupID, cid types.CollectionID) (uint64, error) {
	entries, _, err := node.Read(groupTargetPath(db, gid))
	if err != nil {
		return 0, fmt.Errorf("coordinator: read group target: %w", err)
	}
	raw, exists := entries[groupTargetPath(db, gid)]
	if !exists {
		return 0, fmt.Errorf("coordinator: group %d has no target entry", gid)
	}
	var target types.CollectionGroupTarget
	if err := json.Unmarshal(raw, &target); err != nil {
		return 0, fmt.Errorf("coordinator: decode group target: %w", err)
	}

	remaining := make([]types.CollectionID, 0, len(target.Collections))
	found := false
	for _, id := range target.Collections {
		if id == cid {
			found = true
			continue
		}
		remaining = append(remaining, id)
	}
	if !found {
		return 0, fmt.Errorf("coordinator: collection %d not targeted in group %d", cid, gid)
	}
	target.Collections = remaining
	target.Version++

	var txn agency.Transaction
	txn.Preconditions = append(txn.Preconditions, agency.PreconditionEquals(groupTargetPath(db, gid), mustDecode(raw)))
	txn.Mutations = append(txn.Mutations,
		agency.MutationSetValue(groupTargetPath(db, gid), target),
		agency.MutationDeleteKey(collectionTargetPath(db, cid)),
	)
	return node.Apply(ctx, txn)
}

func mustDecode(raw json.RawMessage) types.CollectionGroupTarget {
	var t types.CollectionGroupTarget
	_ = json.Unmarshal(raw, &t)
	return t
}
