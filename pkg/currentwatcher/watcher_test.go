package currentwatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chronosdb/shardcoord/pkg/agency"
	"github.com/chronosdb/shardcoord/pkg/agencycache"
	"github.com/chronosdb/shardcoord/pkg/types"
)

func newTestCache(t *testing.T) (agency.Client, *agencycache.Cache) {
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
	return client, cache
}

func applyAndWait(t *testing.T, client agency.Client, cache *agencycache.Cache, txn agency.Transaction) {
	t.Helper()
	ctx := context.Background()
	idx, err := client.Apply(ctx, txn)
	require.NoError(t, err)
	require.NoError(t, cache.WaitForIndex(ctx, idx, time.Second))
}

func TestCollectionShardsPredicatePendingUntilAllReport(t *testing.T) {
	client, cache := newTestCache(t)

	predicate := &CollectionShardsPredicate{
		DB:           "_system",
		CollectionID: 42,
		Expected: map[string]types.ServerList{
			"s1": {"PRMR-a", "PRMR-b"},
			"s2": {"PRMR-a", "PRMR-b"},
		},
	}
	w := New(cache, []Predicate{predicate})
	w.Poll()
	o, done := w.ResultIfAllReported()
	require.False(t, done)
	require.Equal(t, OutcomePending, o)

	applyAndWait(t, client, cache, agency.Transaction{Mutations: []agency.Mutation{
		agency.MutationSetValue("Current/Collections/_system/42/s1", types.CurrentShardEntry{Servers: types.ServerList{"PRMR-a", "PRMR-b"}}),
	}})
	w.Poll()
	_, done = w.ResultIfAllReported()
	require.False(t, done, "one of two shards reported, should still be pending")

	applyAndWait(t, client, cache, agency.Transaction{Mutations: []agency.Mutation{
		agency.MutationSetValue("Current/Collections/_system/42/s2", types.CurrentShardEntry{Servers: types.ServerList{"PRMR-a", "PRMR-b"}}),
	}})
	w.Poll()
	o, done = w.ResultIfAllReported()
	require.True(t, done)
	require.Equal(t, OutcomeOK, o)
}

func TestCollectionShardsPredicateErrorsOnShardError(t *testing.T) {
	client, cache := newTestCache(t)

	predicate := &CollectionShardsPredicate{
		DB:           "_system",
		CollectionID: 42,
		Expected:     map[string]types.ServerList{"s1": {"PRMR-a"}},
	}
	w := New(cache, []Predicate{predicate})

	applyAndWait(t, client, cache, agency.Transaction{Mutations: []agency.Mutation{
		agency.MutationSetValue("Current/Collections/_system/42/s1", types.CurrentShardEntry{Error: true, ErrorMessage: "boom"}),
	}})
	w.Poll()
	o, done := w.ResultIfAllReported()
	require.True(t, done)
	require.Equal(t, OutcomeError, o)
}

func TestCollectionShardsPredicateWaitForSyncReplicationRequiresExactServerSet(t *testing.T) {
	client, cache := newTestCache(t)

	predicate := &CollectionShardsPredicate{
		DB:                     "_system",
		CollectionID:           42,
		Expected:               map[string]types.ServerList{"s1": {"PRMR-a", "PRMR-b"}},
		WaitForSyncReplication: true,
	}
	w := New(cache, []Predicate{predicate})

	applyAndWait(t, client, cache, agency.Transaction{Mutations: []agency.Mutation{
		agency.MutationSetValue("Current/Collections/_system/42/s1", types.CurrentShardEntry{Servers: types.ServerList{"PRMR-a"}}),
	}})
	w.Poll()
	_, done := w.ResultIfAllReported()
	require.False(t, done, "follower not yet caught up, still pending")

	applyAndWait(t, client, cache, agency.Transaction{Mutations: []agency.Mutation{
		agency.MutationSetValue("Current/Collections/_system/42/s1", types.CurrentShardEntry{Servers: types.ServerList{"PRMR-a", "PRMR-b"}}),
	}})
	w.Poll()
	o, done := w.ResultIfAllReported()
	require.True(t, done)
	require.Equal(t, OutcomeOK, o)
}

func TestLogSupervisionPredicateCompletesOnVersionCatchUp(t *testing.T) {
	client, cache := newTestCache(t)

	predicate := &LogSupervisionPredicate{DB: "_system", LogID: 5, TargetVersion: 3}
	w := New(cache, []Predicate{predicate})

	applyAndWait(t, client, cache, agency.Transaction{Mutations: []agency.Mutation{
		agency.MutationSetValue("Current/ReplicatedLogs/_system/5/supervision", types.LogCurrentSupervision{TargetVersion: 1}),
	}})
	w.Poll()
	_, done := w.ResultIfAllReported()
	require.False(t, done)

	applyAndWait(t, client, cache, agency.Transaction{Mutations: []agency.Mutation{
		agency.MutationSetValue("Current/ReplicatedLogs/_system/5/supervision", types.LogCurrentSupervision{TargetVersion: 3}),
	}})
	w.Poll()
	o, done := w.ResultIfAllReported()
	require.True(t, done)
	require.Equal(t, OutcomeOK, o)
}

func TestWaitTimesOutWhenPredicateNeverCompletes(t *testing.T) {
	_, cache := newTestCache(t)

	predicate := &LogSupervisionPredicate{DB: "_system", LogID: 99, TargetVersion: 1}
	w := New(cache, []Predicate{predicate})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := w.Wait(ctx, 10*time.Millisecond)
	require.Error(t, err)
}
