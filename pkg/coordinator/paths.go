package coordinator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chronosdb/shardcoord/pkg/types"
)

const (
	prefixTargetGroups = "Target/CollectionGroups"
	prefixTargetColls  = "Target/Collections"
	prefixPlanGroups   = "Plan/CollectionGroups"
	prefixPlanColls    = "Plan/Collections"
	prefixTargetLogs   = "Target/ReplicatedLogs"
	prefixCurrentLogs  = "Current/ReplicatedLogs"
	prefixHealth       = "Supervision/Health"
)

func groupTargetPath(db types.DatabaseName, gid types.CollectionGroupID) string {
	return fmt.Sprintf("%s/%s/%d", prefixTargetGroups, db, gid)
}

func groupPlanPath(db types.DatabaseName, gid types.CollectionGroupID) string {
	return fmt.Sprintf("%s/%s/%d", prefixPlanGroups, db, gid)
}

// collectionTargetPath is the coordinator's own convention for storing a
// collection's declared attributes, keyed independently of the owning
// group's Target entry so a collection can be looked up without first
// resolving its group, mirroring the Plan side's shape one level up the
// tree.
func collectionTargetPath(db types.DatabaseName, cid types.CollectionID) string {
	return fmt.Sprintf("%s/%s/%d", prefixTargetColls, db, cid)
}

func collectionPlanPath(db types.DatabaseName, cid types.CollectionID) string {
	return fmt.Sprintf("%s/%s/%d", prefixPlanColls, db, cid)
}

func logTargetPath(db types.DatabaseName, id types.LogID) string {
	return fmt.Sprintf("%s/%s/%d", prefixTargetLogs, db, id)
}

func logCurrentSupervisionPath(db types.DatabaseName, id types.LogID) string {
	return fmt.Sprintf("%s/%s/%d/supervision", prefixCurrentLogs, db, id)
}

// parseGroupRoot reports whether path is exactly a group's own Target
// entry (Target/CollectionGroups/<db>/<gid>), as opposed to a child such as
// .../collections, returning the db and group id if so.
func parseGroupRoot(path string) (db types.DatabaseName, gid types.CollectionGroupID, ok bool) {
	rest := strings.TrimPrefix(path, prefixTargetGroups+"/")
	if rest == path {
		return "", 0, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		return "", 0, false
	}
	n, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return types.DatabaseName(parts[0]), types.CollectionGroupID(n), true
}
