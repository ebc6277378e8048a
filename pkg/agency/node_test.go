package agency

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	addr := "127.0.0.1:0"
	node, err := NewNode(Config{NodeID: "node1", BindAddr: addr, DataDir: t.TempDir(), ApplyTimeout: 2 * time.Second})
	require.NoError(t, err)
	require.NoError(t, node.Bootstrap())
	t.Cleanup(func() { _ = node.Shutdown() })

	require.Eventually(t, node.IsLeader, 2*time.Second, 10*time.Millisecond, "single-node cluster must self-elect")
	return node
}

func TestNodeBootstrapApplyRead(t *testing.T) {
	node := newTestNode(t)
	client := NewLocalClient(node)
	ctx := context.Background()

	idx, err := client.Apply(ctx, Transaction{
		Mutations: []Mutation{MutationSetValue("Target/Databases/db1", map[string]any{"name": "db1"})},
	})
	require.NoError(t, err)
	require.Greater(t, idx, uint64(0))

	entries, readIdx, err := client.Read(ctx, "Target/Databases")
	require.NoError(t, err)
	require.GreaterOrEqual(t, readIdx, idx)
	require.Contains(t, entries, "Target/Databases/db1")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(entries["Target/Databases/db1"], &decoded))
	require.Equal(t, "db1", decoded["name"])
}

func TestNodeApplyPreconditionFailure(t *testing.T) {
	node := newTestNode(t)
	client := NewLocalClient(node)
	ctx := context.Background()

	_, err := client.Apply(ctx, Transaction{
		Mutations: []Mutation{MutationSetValue("Plan/Databases/db1", 1)},
	})
	require.NoError(t, err)

	_, err = client.Apply(ctx, Transaction{
		Preconditions: []Precondition{PreconditionAbsent("Plan/Databases/db1")},
		Mutations:     []Mutation{MutationSetValue("Plan/Databases/db1", 2)},
	})
	require.Error(t, err)
	require.True(t, IsPreconditionFailed(err))
}

func TestNodeIncrementReturnsPostIncrementValue(t *testing.T) {
	node := newTestNode(t)
	client := NewLocalClient(node)
	ctx := context.Background()

	first, err := client.Increment(ctx, "Sync/LatestID", 1000)
	require.NoError(t, err)
	require.Equal(t, int64(1000), first)

	second, err := client.Increment(ctx, "Sync/LatestID", 1000)
	require.NoError(t, err)
	require.Equal(t, int64(2000), second)
}

func TestNodeIncrementConcurrentCallersGetDisjointRanges(t *testing.T) {
	node := newTestNode(t)
	client := NewLocalClient(node)
	ctx := context.Background()

	const callers = 20
	results := make(chan int64, callers)
	for i := 0; i < callers; i++ {
		go func() {
			v, err := client.Increment(ctx, "Sync/LatestID", 100)
			require.NoError(t, err)
			results <- v
		}()
	}

	seen := make(map[int64]bool, callers)
	for i := 0; i < callers; i++ {
		v := <-results
		require.False(t, seen[v], "two callers observed the same post-increment value %d", v)
		seen[v] = true
	}
}

func TestNodeWatchNotifiesOnMatchingChange(t *testing.T) {
	node := newTestNode(t)
	client := NewLocalClient(node)
	ctx := context.Background()

	ch, cancel := client.Watch(ctx, "Plan/Databases")
	defer cancel()

	_, err := client.Apply(ctx, Transaction{
		Mutations: []Mutation{MutationSetValue("Plan/Databases/db1", 1)},
	})
	require.NoError(t, err)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a watch notification after a matching write")
	}
}

func TestNodeWatchIgnoresUnrelatedChange(t *testing.T) {
	node := newTestNode(t)
	client := NewLocalClient(node)
	ctx := context.Background()

	ch, cancel := client.Watch(ctx, "Plan/Databases")
	defer cancel()

	_, err := client.Apply(ctx, Transaction{
		Mutations: []Mutation{MutationSetValue("Target/Databases/db1", 1)},
	})
	require.NoError(t, err)

	select {
	case <-ch:
		t.Fatal("did not expect a notification for an unrelated prefix")
	case <-time.After(100 * time.Millisecond):
	}
}
