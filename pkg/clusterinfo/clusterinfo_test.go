package clusterinfo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chronosdb/shardcoord/pkg/agency"
	"github.com/chronosdb/shardcoord/pkg/agencycache"
	"github.com/chronosdb/shardcoord/pkg/reboot"
	"github.com/chronosdb/shardcoord/pkg/types"
)

func newTestInfo(t *testing.T) (agency.Client, *agencycache.Cache, *Info) {
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

	client := agency.NewLocalClient(node)
	cache := agencycache.New(client)
	ctx := context.Background()
	require.NoError(t, cache.Start(ctx))
	t.Cleanup(cache.Stop)

	tracker := reboot.NewTracker()
	tracker.Start()
	t.Cleanup(tracker.Stop)

	alloc := agencycache.NewIDAllocator(client)
	return client, cache, New(cache, tracker, alloc)
}

func seedCollection(t *testing.T, client agency.Client, cache *agencycache.Cache) {
	t.Helper()
	ctx := context.Background()
	plan := types.CollectionPlan{
		CollectionTarget: types.CollectionTarget{ID: 42, Name: "docs", GroupID: 7},
		DeprecatedShardMap: map[string]types.ServerList{
			"s2":  {"PRMR-a", "PRMR-b"},
			"s10": {"PRMR-b", "PRMR-a"},
		},
	}
	idx, err := client.Apply(ctx, agency.Transaction{Mutations: []agency.Mutation{
		agency.MutationSetValue("Plan/Collections/_system/42", plan),
	}})
	require.NoError(t, err)
	require.NoError(t, cache.WaitForIndex(ctx, idx, time.Second))
}

func TestGetCollectionByIDAndName(t *testing.T) {
	client, cache, info := newTestInfo(t)
	seedCollection(t, client, cache)

	byID, err := info.GetCollection("_system", "42")
	require.NoError(t, err)
	require.Equal(t, "docs", byID.Name)

	byName, err := info.GetCollection("_system", "docs")
	require.NoError(t, err)
	require.Equal(t, types.CollectionID(42), byName.ID)
}

func TestGetCollectionNTMissing(t *testing.T) {
	_, _, info := newTestInfo(t)
	_, ok := info.GetCollectionNT("_system", "999")
	require.False(t, ok)
}

func TestGetShardListIsVersionSorted(t *testing.T) {
	client, cache, info := newTestInfo(t)
	seedCollection(t, client, cache)

	shards, err := info.GetShardList("_system", 42)
	require.NoError(t, err)
	require.Equal(t, []string{"s2", "s10"}, shards)
}

func TestGetResponsibleServerAndLeader(t *testing.T) {
	client, cache, info := newTestInfo(t)
	seedCollection(t, client, cache)

	servers, err := info.GetResponsibleServer("_system", 42, "s2")
	require.NoError(t, err)
	require.Equal(t, types.ServerList{"PRMR-a", "PRMR-b"}, servers)

	leader, err := info.GetLeaderForShard("_system", 42, "s2")
	require.NoError(t, err)
	require.Equal(t, types.ServerID("PRMR-a"), leader)

	_, ok := info.GetResponsibleServerNoDelay("_system", 42, "nosuch")
	require.False(t, ok)
}

func TestGetLeadersForShardsBatches(t *testing.T) {
	client, cache, info := newTestInfo(t)
	seedCollection(t, client, cache)

	leaders, err := info.GetLeadersForShards("_system", 42, []string{"s2", "s10"})
	require.NoError(t, err)
	require.Equal(t, types.ServerID("PRMR-a"), leaders["s2"])
	require.Equal(t, types.ServerID("PRMR-b"), leaders["s10"])
}

func TestUniqidReservesDistinctIDs(t *testing.T) {
	_, _, info := newTestInfo(t)
	ids, err := info.Uniqid(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, ids, 4)
}

func TestRebootTrackerExposed(t *testing.T) {
	_, _, info := newTestInfo(t)
	require.NotNil(t, info.RebootTracker())
}
