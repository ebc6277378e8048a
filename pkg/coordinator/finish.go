package coordinator

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/chronosdb/shardcoord/pkg/agency"
	"github.com/chronosdb/shardcoord/pkg/agencycache"
	"github.com/chronosdb/shardcoord/pkg/currentwatcher"
	"github.com/chronosdb/shardcoord/pkg/log"
	"github.com/chronosdb/shardcoord/pkg/types"
)

// FinishBuildingCollections scans Plan for collections still marked
// isBuilding and, for each one whose shards have all reported into
// Current free of error, clears isBuilding. It runs here as a periodic
// scan instead of synchronously after a single create call so it also
// recovers collections left building by a coordinator that died before
// it could finish them itself.
//
// It never auto-rolls-back a collection whose shards reported an error;
// that surfaces to whoever is watching the collection as a
// cluster-could-not-create-collection condition, and rollback is their
// call to make via DropCollection: no retry, no silent cleanup.
func FinishBuildingCollections(ctx context.Context, node *agency.Node, cache *agencycache.Cache) {
	logger := log.WithComponent("coordinator")

	for path, raw := range cache.GetPrefix(prefixPlanColls) {
		if !isCollectionRootPath(path) {
			continue
		}
		var plan types.CollectionPlan
		if err := json.Unmarshal(raw, &plan); err != nil {
			continue
		}
		if !plan.IsBuilding {
			continue
		}

		db, cid, ok := parsePlanCollectionPath(path)
		if !ok {
			continue
		}

		predicate := &currentwatcher.CollectionShardsPredicate{
			DB:           db,
			CollectionID: cid,
			Expected:     plan.DeprecatedShardMap,
		}
		switch predicate.Evaluate(cache) {
		case currentwatcher.OutcomeOK:
			finished := plan
			finished.IsBuilding = false
			_, err := node.Apply(ctx, agency.Transaction{
				Preconditions: []agency.Precondition{agency.PreconditionEquals(path, plan)},
				Mutations:     []agency.Mutation{agency.MutationSetValue(path, finished)},
			})
			logFinishResult(logger, db, cid, err)
		case currentwatcher.OutcomeError:
			logger.Warn().
				Str("database", string(db)).
				Uint64("collection", uint64(cid)).
				Msg("collection reported a shard error while building")
		}
	}
}

func logFinishResult(logger zerolog.Logger, db types.DatabaseName, cid types.CollectionID, err error) {
	if err == nil {
		logger.Info().Str("database", string(db)).Uint64("collection", uint64(cid)).Msg("collection finished building")
		return
	}
	if agency.IsPreconditionFailed(err) {
		return
	}
	logger.Warn().Str("database", string(db)).Uint64("collection", uint64(cid)).Err(err).Msg("finish transaction failed")
}

func isCollectionRootPath(path string) bool {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return false
	}
	_, err := strconv.ParseUint(path[idx+1:], 10, 64)
	return err == nil
}

func parsePlanCollectionPath(path string) (types.DatabaseName, types.CollectionID, bool) {
	rest := strings.TrimPrefix(path, prefixPlanColls+"/")
	if rest == path {
		return "", 0, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		return "", 0, false
	}
	cid, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return types.DatabaseName(parts[0]), types.CollectionID(cid), true
}
