package types

import "github.com/chronosdb/shardcoord/pkg/shardid"

// CollectionKind distinguishes document from edge collections.
type CollectionKind string

const (
	CollectionKindDocument CollectionKind = "document"
	CollectionKindEdge     CollectionKind = "edge"
)

// CollectionTarget is the desired state of a collection, conceptually
// written to Target/Collections/<db>/<cid>; the target tree carries the
// same shape keyed under the owning group instead.
type CollectionTarget struct {
	ID      CollectionID      `json:"id"`
	Name    string            `json:"name"`
	GroupID CollectionGroupID `json:"groupId"`
	Kind    CollectionKind    `json:"kind"`

	IsSystem   bool `json:"isSystem,omitempty"`
	IsSmart    bool `json:"isSmart,omitempty"`
	IsDisjoint bool `json:"isDisjoint,omitempty"`

	CacheEnabled bool `json:"cacheEnabled,omitempty"`

	ShardKeys           []string `json:"shardKeys"`
	SmartJoinAttribute  string   `json:"smartJoinAttribute,omitempty"`
	SmartGraphAttribute string   `json:"smartGraphAttribute,omitempty"`
	ShadowCollections   []CollectionID `json:"shadowCollections,omitempty"`

	// DistributeShardsLike names the prototype collection this collection
	// copies placement from. RepairingDistributeShardsLike is the same
	// relation, temporarily renamed while a repair pass is in flight.
	// Spec invariant 7: at most one of the two is ever non-empty.
	DistributeShardsLike         CollectionID `json:"distributeShardsLike,omitempty"`
	RepairingDistributeShardsLike CollectionID `json:"repairingDistributeShardsLike,omitempty"`

	Schema         map[string]any `json:"schema,omitempty"`
	ComputedValues []ComputedValue `json:"computedValues,omitempty"`
}

// HasDistributionPrototype reports whether this collection's shards must
// mirror another collection's placement, under either name.
func (c CollectionTarget) HasDistributionPrototype() bool {
	return c.DistributeShardsLike != 0 || c.RepairingDistributeShardsLike != 0
}

// DistributionPrototype returns whichever of DistributeShardsLike /
// RepairingDistributeShardsLike is set, and which state the relation is in.
func (c CollectionTarget) DistributionPrototype() (proto CollectionID, repairing bool, ok bool) {
	if c.RepairingDistributeShardsLike != 0 {
		return c.RepairingDistributeShardsLike, true, true
	}
	if c.DistributeShardsLike != 0 {
		return c.DistributeShardsLike, false, true
	}
	return 0, false, false
}

// ComputedValue is a single computed-value definition on a collection.
type ComputedValue struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Overwrite  bool   `json:"overwrite"`
}

// CollectionPlan is the committed state of a collection, written to
// Plan/Collections/<db>/<cid>.
type CollectionPlan struct {
	CollectionTarget
	IsBuilding          bool              `json:"isBuilding,omitempty"`
	Coordinator         ServerID          `json:"coordinator,omitempty"`
	CoordinatorRebootID uint64            `json:"coordinatorRebootId,omitempty"`
	DeprecatedShardMap  map[string]ServerList `json:"shards"`
}

// Visible reports whether clients should see this collection: IsBuilding
// must be absent (spec invariant 5).
func (c CollectionPlan) Visible() bool {
	return !c.IsBuilding
}

// OrderedShardIDs returns the shard ids of this collection's shard map in
// version-sort order.
func (c CollectionPlan) OrderedShardIDs() []string {
	ids := make([]string, 0, len(c.DeprecatedShardMap))
	for id := range c.DeprecatedShardMap {
		ids = append(ids, id)
	}
	shardid.Sort(ids)
	return ids
}

// CurrentShardEntry is one shard's reported state under
// Current/Collections/<db>/<cid>/<sid>.
type CurrentShardEntry struct {
	Servers ServerList `json:"servers"`
	Error   bool       `json:"error"`
	ErrorMessage string  `json:"errorMessage,omitempty"`
	ErrorNum     int     `json:"errorNum,omitempty"`
}
