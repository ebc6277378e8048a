package currentwatcher

import (
	"encoding/json"
	"fmt"

	"github.com/chronosdb/shardcoord/pkg/agencycache"
	"github.com/chronosdb/shardcoord/pkg/types"
)

// Outcome is one predicate's (or the shared Result's) current verdict.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeOK
	OutcomeError
)

// Predicate evaluates one watched entity's Current state against a cache
// snapshot. Evaluate must never block: it reads only what the cache
// already holds.
type Predicate interface {
	ID() string
	Evaluate(cache *agencycache.Cache) Outcome
}

// CollectionShardsPredicate completes once every shard of a just-created
// collection has reported into Current, error-free, and — if
// WaitForSyncReplication — reporting exactly the expected server set.
type CollectionShardsPredicate struct {
	DB                     types.DatabaseName
	CollectionID           types.CollectionID
	Expected               map[string]types.ServerList
	WaitForSyncReplication bool
}

func (p *CollectionShardsPredicate) ID() string {
	return fmt.Sprintf("collection:%s/%d", p.DB, p.CollectionID)
}

func (p *CollectionShardsPredicate) Evaluate(cache *agencycache.Cache) Outcome {
	prefix := fmt.Sprintf("Current/Collections/%s/%d", p.DB, p.CollectionID)

	for shardID, expected := range p.Expected {
		raw, ok := cache.Get(prefix + "/" + shardID)
		if !ok {
			return OutcomePending
		}
		var entry types.CurrentShardEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return OutcomePending
		}
		if entry.Error {
			return OutcomeError
		}
		if p.WaitForSyncReplication && !sameServerSet(entry.Servers, expected) {
			return OutcomePending
		}
	}
	return OutcomeOK
}

func sameServerSet(a, b types.ServerList) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[types.ServerID]struct{}, len(a))
	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			return false
		}
	}
	return true
}

// LogSupervisionPredicate completes once a replicated log's supervision
// state reports it has caught up to the version its creator wrote. It
// never reports error: log-layer trouble is always transient from this
// predicate's point of view.
type LogSupervisionPredicate struct {
	DB            types.DatabaseName
	LogID         types.LogID
	TargetVersion uint64
}

func (p *LogSupervisionPredicate) ID() string {
	return fmt.Sprintf("log:%s/%d", p.DB, p.LogID)
}

func (p *LogSupervisionPredicate) Evaluate(cache *agencycache.Cache) Outcome {
	path := fmt.Sprintf("Current/ReplicatedLogs/%s/%d/supervision", p.DB, p.LogID)
	raw, ok := cache.Get(path)
	if !ok {
		return OutcomePending
	}
	var sup types.LogCurrentSupervision
	if err := json.Unmarshal(raw, &sup); err != nil {
		return OutcomePending
	}
	if sup.Converged(p.TargetVersion) {
		return OutcomeOK
	}
	return OutcomePending
}
