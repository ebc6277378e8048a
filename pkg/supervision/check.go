package supervision

import (
	"sort"

	"github.com/chronosdb/shardcoord/pkg/placement"
	"github.com/chronosdb/shardcoord/pkg/shardid"
	"github.com/chronosdb/shardcoord/pkg/types"
)

// Check decides the single next action for a collection group, in strict
// priority order: the first step that applies wins, everything after it is
// not even evaluated. Repeated calls as the group's reported state catches
// up walk it to convergence one action at a time.
func Check(g GroupState, ids IDSource) Action {
	if g.Plan == nil {
		return checkCreateGroup(g, ids)
	}

	if a, ok := checkLogConfig(g); ok {
		return a
	}
	if a, ok := checkTooFewParticipants(g); ok {
		return a
	}
	if a, ok := checkTooManyParticipants(g); ok {
		return a
	}
	if a, ok := checkMissingCollectionPlan(g, ids); ok {
		return a
	}
	if a, ok := checkOrphanedCollectionPlan(g); ok {
		return a
	}
	if a, ok := checkShardMapDrift(g); ok {
		return a
	}
	if a, ok := checkConvergedVersion(g); ok {
		return a
	}

	if g.Plan.ConvergedVersion >= g.Target.Version {
		return NoActionRequired{}
	}
	return NoActionPossible{Reason: "waiting for replicated logs to report convergence"}
}

// desiredParticipantCount is the replication factor a group's sheaves
// should carry: the literal factor, or every healthy DB-server for a
// satellite group.
func desiredParticipantCount(g GroupState) int {
	if g.Target.ReplicationFactor.IsSatellite() {
		return len(g.Health.HealthyServers(types.RoleDBServer))
	}
	return g.Target.ReplicationFactor.N
}

func checkCreateGroup(g GroupState, ids IDSource) Action {
	healthy := types.ServerList(g.Health.HealthyServers(types.RoleDBServer))
	sort.Slice(healthy, func(i, j int) bool { return healthy[i] < healthy[j] })

	shardIDs := make([]string, g.Target.NumberOfShards)
	for i := range shardIDs {
		shardIDs[i] = shardid.New(ids.NextID())
	}

	result, err := placement.EvenDistribution(placement.EvenDistributionRequest{
		ShardIDs:                 shardIDs,
		Servers:                  healthy,
		ReplicationFactor:        g.Target.ReplicationFactor,
		EnforceReplicationFactor: true,
	})
	if err != nil {
		return NoActionPossible{Reason: "insufficient healthy db servers to place new collection group: " + err.Error()}
	}

	config := g.Target.LogConfigFor()
	sheaves := make([]types.ShardSheaf, g.Target.NumberOfShards)
	logTargets := make([]types.LogTarget, g.Target.NumberOfShards)
	for i, shardID := range shardIDs {
		logID := types.LogID(shardid.MustParse(shardID).Number)
		servers := result.Shards[shardID]
		sheaves[i] = types.ShardSheaf{Index: i, LogID: logID}
		logTargets[i] = types.LogTarget{
			ID:           logID,
			Participants: participantsFor(servers),
			Leader:       servers.Leader(),
			Config:       config,
			Version:      1,
		}
	}

	return AddCollectionGroupToPlan{
		Plan: types.CollectionGroupPlan{
			ID:               g.GroupID,
			Sheaves:          sheaves,
			Collections:      append([]types.CollectionID(nil), g.Target.Collections...),
			ConvergedVersion: 0,
		},
		LogTargets: logTargets,
	}
}

func participantsFor(servers types.ServerList) []types.LogTargetParticipant {
	out := make([]types.LogTargetParticipant, len(servers))
	for i, s := range servers {
		out[i] = types.LogTargetParticipant{Server: s}
	}
	return out
}

func checkLogConfig(g GroupState) (Action, bool) {
	desired := g.Target.LogConfigFor()
	for _, sheaf := range orderedSheaves(g) {
		if !sheaf.LogTarget.Config.Equal(desired) {
			return UpdateReplicatedLogConfig{LogID: sheaf.Sheaf.LogID, Config: desired}, true
		}
	}
	return nil, false
}

func checkTooFewParticipants(g GroupState) (Action, bool) {
	want := desiredParticipantCount(g)
	for _, sheaf := range orderedSheaves(g) {
		if len(sheaf.LogTarget.Participants) >= want {
			continue
		}
		candidate, ok := pickAdditionalParticipant(g, sheaf)
		if !ok {
			return NoActionPossible{Reason: "no healthy db server available to add as a log participant"}, true
		}
		return AddParticipantToLog{LogID: sheaf.Sheaf.LogID, Server: candidate}, true
	}
	return nil, false
}

func pickAdditionalParticipant(g GroupState, sheaf SheafState) (types.ServerID, bool) {
	healthy := types.ServerList(g.Health.HealthyServers(types.RoleDBServer))
	sort.Slice(healthy, func(i, j int) bool { return healthy[i] < healthy[j] })
	for _, s := range healthy {
		if !sheaf.LogTarget.HasParticipant(s) {
			return s, true
		}
	}
	return "", false
}

func checkTooManyParticipants(g GroupState) (Action, bool) {
	want := desiredParticipantCount(g)
	for _, sheaf := range orderedSheaves(g) {
		participants := sheaf.LogTarget.Participants
		if len(participants) <= want {
			continue
		}
		for i := len(participants) - 1; i >= 0; i-- {
			if participants[i].Server == sheaf.LogTarget.Leader {
				continue
			}
			return RemoveParticipantFromLog{LogID: sheaf.Sheaf.LogID, Server: participants[i].Server}, true
		}
		return NoActionPossible{Reason: "every excess log participant is the current leader"}, true
	}
	return nil, false
}

func checkMissingCollectionPlan(g GroupState, ids IDSource) (Action, bool) {
	for _, c := range orderedCollections(g) {
		if !c.InTarget || c.InPlan {
			continue
		}

		mapping, ok := desiredShardMap(g, c, ids)
		if !ok {
			return NoActionPossible{Reason: "collection's distribution prototype is not yet planned"}, true
		}

		return AddCollectionToPlan{Spec: types.CollectionPlan{
			CollectionTarget:   c.Target,
			IsBuilding:         true,
			DeprecatedShardMap: mapping,
		}}, true
	}
	return nil, false
}

func checkOrphanedCollectionPlan(g GroupState) (Action, bool) {
	for _, c := range orderedCollections(g) {
		if c.InPlan && !c.InTarget {
			return DropCollectionPlan{CollectionID: c.ID}, true
		}
	}
	return nil, false
}

func checkShardMapDrift(g GroupState) (Action, bool) {
	for _, c := range orderedCollections(g) {
		if !c.InTarget || !c.InPlan {
			continue
		}
		want := refreshedShardMap(g, c)
		if want == nil {
			continue
		}
		if !shardMapsEqual(c.Plan.DeprecatedShardMap, want) {
			return UpdateCollectionShardMap{CollectionID: c.ID, Mapping: want}, true
		}
	}
	return nil, false
}

func checkConvergedVersion(g GroupState) (Action, bool) {
	if g.Plan.ConvergedVersion >= g.Target.Version {
		return nil, false
	}
	for _, sheaf := range g.Sheaves {
		if !sheaf.LogCurrent.Converged(g.Target.Version) {
			return nil, false
		}
	}
	return UpdateConvergedVersion{Version: g.Target.Version}, true
}

// desiredShardMap computes the shard map a newly planned collection should
// carry: either a fresh set of shard ids walking the group's sheaves in
// order, or (for distributeShardsLike) the prototype's existing map
// verbatim. ok is false only when the prototype itself has not been
// planned yet.
func desiredShardMap(g GroupState, c CollectionState, ids IDSource) (map[string]types.ServerList, bool) {
	protoID, _, has := c.Target.DistributionPrototype()
	if !has {
		numberOfShards := len(g.Sheaves)
		mapping := make(map[string]types.ServerList, numberOfShards)
		for _, sheaf := range orderedSheaves(g) {
			shardID := shardid.New(ids.NextID())
			mapping[shardID] = shardServers(sheaf)
		}
		return mapping, true
	}

	proto, ok := findCollection(g, protoID)
	if !ok || !proto.InPlan {
		return nil, false
	}
	protoIDs := shardid.SortedKeys(proto.Plan.DeprecatedShardMap)
	newIDs := make([]string, len(protoIDs))
	for i := range newIDs {
		newIDs[i] = shardid.New(ids.NextID())
	}
	result, err := placement.LikeDistribution(protoIDs, proto.Plan.DeprecatedShardMap, newIDs)
	if err != nil {
		return nil, false
	}
	return result.Shards, true
}

// refreshedShardMap recomputes the map a collection's shards should carry
// right now, using the same shard ids it already has. Returns nil if the
// collection has no shards yet to refresh (AddCollectionToPlan handles
// that case instead).
func refreshedShardMap(g GroupState, c CollectionState) map[string]types.ServerList {
	if len(c.Plan.DeprecatedShardMap) == 0 {
		return nil
	}

	protoID, _, isLike := c.Target.DistributionPrototype()
	if isLike {
		proto, ok := findCollection(g, protoID)
		if !ok || !proto.InPlan {
			return nil
		}
		existing := shardid.SortedKeys(c.Plan.DeprecatedShardMap)
		protoIDs := shardid.SortedKeys(proto.Plan.DeprecatedShardMap)
		result, err := placement.LikeDistribution(protoIDs, proto.Plan.DeprecatedShardMap, existing)
		if err != nil {
			return nil
		}
		return result.Shards
	}

	existing := shardid.SortedKeys(c.Plan.DeprecatedShardMap)
	mapping := make(map[string]types.ServerList, len(existing))
	for i, shardID := range existing {
		sheaf, ok := g.sheafByIndex(i)
		if !ok {
			return nil
		}
		mapping[shardID] = shardServers(sheaf)
	}
	return mapping
}

func shardServers(sheaf SheafState) types.ServerList {
	if len(sheaf.CurrentServers) > 0 {
		return sheaf.CurrentServers.Clone()
	}
	return sheaf.LogTarget.ParticipantServers()
}

func shardMapsEqual(a, b map[string]types.ServerList) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
	}
	return true
}

func findCollection(g GroupState, id types.CollectionID) (CollectionState, bool) {
	for _, c := range g.Collections {
		if c.ID == id {
			return c, true
		}
	}
	return CollectionState{}, false
}

func orderedSheaves(g GroupState) []SheafState {
	out := append([]SheafState(nil), g.Sheaves...)
	sort.Slice(out, func(i, j int) bool { return out[i].Sheaf.Index < out[j].Sheaf.Index })
	return out
}

func orderedCollections(g GroupState) []CollectionState {
	out := append([]CollectionState(nil), g.Collections...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
