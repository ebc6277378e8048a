package agencywriter

import (
	"fmt"

	"github.com/chronosdb/shardcoord/pkg/types"
)

const (
	pathPlanVersion        = "Plan/Version"
	pathCleanedServers     = "Target/CleanedServers"
	pathToBeCleanedServers = "Target/ToBeCleanedServers"
)

func groupTargetPath(db types.DatabaseName, gid types.CollectionGroupID) string {
	return fmt.Sprintf("Target/CollectionGroups/%s/%d", db, gid)
}

func groupTargetCollectionsPath(db types.DatabaseName, gid types.CollectionGroupID) string {
	return fmt.Sprintf("Target/CollectionGroups/%s/%d/collections", db, gid)
}

func logTargetPath(db types.DatabaseName, logID types.LogID) string {
	return fmt.Sprintf("Target/ReplicatedLogs/%s/%d", db, logID)
}

func collectionPlanPath(db types.DatabaseName, cid types.CollectionID) string {
	return fmt.Sprintf("Plan/Collections/%s/%d", db, cid)
}
