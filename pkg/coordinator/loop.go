package coordinator

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/chronosdb/shardcoord/pkg/agency"
	"github.com/chronosdb/shardcoord/pkg/agencycache"
	"github.com/chronosdb/shardcoord/pkg/health"
	"github.com/chronosdb/shardcoord/pkg/log"
	"github.com/chronosdb/shardcoord/pkg/supervision"
	"github.com/chronosdb/shardcoord/pkg/types"
)

// idBatchSize bounds how many ids Loop prefetches per group per tick. A
// group's worst case (a brand-new group) needs one id per shard sheaf, each
// sheaf's log id reusing its shard's id; this comfortably covers realistic shard counts
// without round-tripping the allocator once per sheaf.
const idBatchSize = 64

// Loop drives pkg/supervision.Check to convergence over every known
// collection group: each tick reads Target/Plan/Current/Health from the
// cache, decides one action per group, and applies it.
type Loop struct {
	node   *agency.Node
	cache  *agencycache.Cache
	ids    *agencycache.IDAllocator
	health *health.View
	logger zerolog.Logger

	interval time.Duration
}

// NewLoop builds a Loop. interval is the tick cadence of Run, which
// reconciles only on ticks and does not listen for watch notifications;
// zero selects 1s.
func NewLoop(node *agency.Node, cache *agencycache.Cache, ids *agencycache.IDAllocator, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = time.Second
	}
	return &Loop{
		node:     node,
		cache:    cache,
		ids:      ids,
		health:   health.NewView(health.DefaultConfig()),
		logger:   log.WithComponent("coordinator"),
		interval: interval,
	}
}

// Run ticks until ctx is canceled, reconciling every group once per tick.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	clusterHealth := BuildHealth(l.cache, l.health)

	for _, key := range ListGroups(l.cache) {
		if err := l.reconcileGroup(ctx, key, clusterHealth); err != nil {
			l.logger.Warn().
				Str("database", string(key.db)).
				Uint64("group", uint64(key.gid)).
				Err(err).
				Msg("reconcile group failed")
		}
	}

	FinishBuildingCollections(ctx, l.node, l.cache)
}

func (l *Loop) reconcileGroup(ctx context.Context, key groupKey, clusterHealth types.ClusterHealth) error {
	state, err := BuildGroupState(l.cache, key.db, key.gid, clusterHealth)
	if err != nil {
		return err
	}

	ids, err := PrefetchIDs(ctx, l.ids, idBatchSize)
	if err != nil {
		return err
	}

	action := supervision.Check(state, ids)
	txn, done := BuildActionTransaction(key.db, state, action)
	if !done {
		if na, ok := action.(supervision.NoActionPossible); ok {
			l.logger.Debug().
				Str("database", string(key.db)).
				Uint64("group", uint64(key.gid)).
				Str("reason", na.Reason).
				Msg("group not converged, no action possible yet")
		}
		return nil
	}

	index, err := l.node.Apply(ctx, txn)
	if err != nil {
		if agency.IsPreconditionFailed(err) {
			// Another writer (a repair job, a concurrent coordinator) beat
			// us to it; the next tick re-reads and re-decides.
			return nil
		}
		return err
	}

	l.logger.Info().
		Str("database", string(key.db)).
		Uint64("group", uint64(key.gid)).
		Uint64("index", index).
		Str("action", actionName(action)).
		Msg("applied supervision action")
	return nil
}

func actionName(a supervision.Action) string {
	switch a.(type) {
	case supervision.AddCollectionGroupToPlan:
		return "AddCollectionGroupToPlan"
	case supervision.UpdateReplicatedLogConfig:
		return "UpdateReplicatedLogConfig"
	case supervision.AddParticipantToLog:
		return "AddParticipantToLog"
	case supervision.RemoveParticipantFromLog:
		return "RemoveParticipantFromLog"
	case supervision.AddCollectionToPlan:
		return "AddCollectionToPlan"
	case supervision.DropCollectionPlan:
		return "DropCollectionPlan"
	case supervision.UpdateCollectionShardMap:
		return "UpdateCollectionShardMap"
	case supervision.UpdateConvergedVersion:
		return "UpdateConvergedVersion"
	default:
		return "NoAction"
	}
}
