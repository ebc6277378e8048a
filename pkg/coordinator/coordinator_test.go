package coordinator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chronosdb/shardcoord/pkg/agency"
	"github.com/chronosdb/shardcoord/pkg/agencycache"
	"github.com/chronosdb/shardcoord/pkg/health"
	"github.com/chronosdb/shardcoord/pkg/types"
)

func newTestNode(t *testing.T) *agency.Node {
	t.Helper()
	node, err := agency.NewNode(agency.Config{
		NodeID:   "node1",
		BindAddr: "127.0.0.1:0",
		DataDir:  t.TempDir(),
	})
	require.NoError(t, err)
	require.NoError(t, node.Bootstrap())
	t.Cleanup(func() { _ = node.Shutdown() })
	require.Eventually(t, node.IsLeader, 2*time.Second, 10*time.Millisecond)
	return node
}

func seedHealth(t *testing.T, node *agency.Node, servers ...types.ServerID) {
	t.Helper()
	ctx := context.Background()
	var muts []agency.Mutation
	for _, s := range servers {
		muts = append(muts, agency.MutationSetValue("Supervision/Health/"+string(s), types.ServerHealth{
			Status:             types.ServerStatusGood,
			LastHeartbeatAcked: time.Now(),
		}))
	}
	_, err := node.Apply(ctx, agency.Transaction{Mutations: muts})
	require.NoError(t, err)
}

// TestRequestCollectionThenLoopCreatesGroup exercises the full write path:
// an operator requests a collection in a not-yet-existing group, then one
// reconcile pass should create the group's Plan entry and its backing
// replicated logs.
func TestRequestCollectionThenLoopCreatesGroup(t *testing.T) {
	ctx := context.Background()
	node := newTestNode(t)
	seedHealth(t, node, "PRMR-a", "PRMR-b", "PRMR-c")

	client := agency.NewLocalClient(node)
	cache := agencycache.New(client)
	require.NoError(t, cache.Start(ctx))
	defer cache.Stop()

	ids := agencycache.NewIDAllocator(client)

	db := types.DatabaseName("mydb")
	gid := types.CollectionGroupID(1)
	idx, err := RequestCollection(ctx, node, db, gid, GroupDefaults{
		NumberOfShards:    2,
		ReplicationFactor: types.ReplicationFactorN(2),
		WriteConcern:      1,
	}, types.CollectionTarget{ID: 100, Name: "mycoll", Kind: types.CollectionKindDocument})
	require.NoError(t, err)
	require.NoError(t, cache.WaitForIndex(ctx, idx, time.Second))

	view := health.NewView(health.DefaultConfig())
	clusterHealth := BuildHealth(cache, view)
	require.Len(t, clusterHealth.HealthyServers(types.RoleDBServer), 3)

	l := NewLoop(node, cache, ids, 10*time.Millisecond)
	require.NoError(t, l.reconcileGroup(ctx, groupKey{db: db, gid: gid}, clusterHealth))
	require.NoError(t, cache.WaitForIndex(ctx, node.AppliedIndex(), time.Second))

	raw, ok := cache.Get(groupPlanPath(db, gid))
	require.True(t, ok)
	var plan types.CollectionGroupPlan
	require.NoError(t, json.Unmarshal(raw, &plan))
	require.Len(t, plan.Sheaves, 2)

	// A second reconcile pass should now progress to planning the
	// collection itself, since the group (and its logs) already exist.
	require.NoError(t, l.reconcileGroup(ctx, groupKey{db: db, gid: gid}, clusterHealth))
	require.NoError(t, cache.WaitForIndex(ctx, node.AppliedIndex(), time.Second))
	_, ok = cache.Get(collectionPlanPath(db, 100))
	require.True(t, ok)
}

func TestListGroupsOrdersByDatabaseThenID(t *testing.T) {
	ctx := context.Background()
	node := newTestNode(t)
	client := agency.NewLocalClient(node)
	cache := agencycache.New(client)
	require.NoError(t, cache.Start(ctx))
	defer cache.Stop()

	idx, err := node.Apply(ctx, agency.Transaction{Mutations: []agency.Mutation{
		agency.MutationSetValue(groupTargetPath("b", 5), types.CollectionGroupTarget{ID: 5}),
		agency.MutationSetValue(groupTargetPath("a", 9), types.CollectionGroupTarget{ID: 9}),
		agency.MutationSetValue(groupTargetPath("a", 2), types.CollectionGroupTarget{ID: 2}),
	}})
	require.NoError(t, err)
	require.NoError(t, cache.WaitForIndex(ctx, idx, time.Second))

	keys := ListGroups(cache)
	require.Equal(t, []groupKey{
		{db: "a", gid: 2},
		{db: "a", gid: 9},
		{db: "b", gid: 5},
	}, keys)
}

func TestFinishBuildingCollectionsClearsIsBuildingOnceShardsReport(t *testing.T) {
	ctx := context.Background()
	node := newTestNode(t)
	client := agency.NewLocalClient(node)
	cache := agencycache.New(client)
	require.NoError(t, cache.Start(ctx))
	defer cache.Stop()

	db := types.DatabaseName("mydb")
	plan := types.CollectionPlan{
		CollectionTarget:   types.CollectionTarget{ID: 7, Name: "c"},
		IsBuilding:         true,
		DeprecatedShardMap: map[string]types.ServerList{"s1": {"PRMR-a", "PRMR-b"}},
	}
	idx, err := node.Apply(ctx, agency.Transaction{Mutations: []agency.Mutation{
		agency.MutationSetValue(collectionPlanPath(db, 7), plan),
		agency.MutationSetValue("Current/Collections/mydb/7/s1", types.CurrentShardEntry{Servers: types.ServerList{"PRMR-a", "PRMR-b"}}),
	}})
	require.NoError(t, err)
	require.NoError(t, cache.WaitForIndex(ctx, idx, time.Second))

	FinishBuildingCollections(ctx, node, cache)
	require.NoError(t, cache.WaitForIndex(ctx, node.AppliedIndex(), time.Second))

	raw, ok := cache.Get(collectionPlanPath(db, 7))
	require.True(t, ok)
	var finished types.CollectionPlan
	require.NoError(t, json.Unmarshal(raw, &finished))
	require.False(t, finished.IsBuilding)
}
