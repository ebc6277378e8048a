package agency

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/require"
)

func newTestFSM(t *testing.T) *fsm {
	t.Helper()
	store, err := openTreeStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.close() })
	return newFSM(store, newWatcherRegistry())
}

func applyTxn(t *testing.T, f *fsm, idx uint64, txn Transaction) interface{} {
	t.Helper()
	data, err := json.Marshal(Command{Op: opTransaction, Data: mustMarshal(txn)})
	require.NoError(t, err)
	return f.Apply(&raft.Log{Index: idx, Data: data})
}

func TestFSMSetAndGet(t *testing.T) {
	f := newTestFSM(t)

	result := applyTxn(t, f, 1, Transaction{
		Mutations: []Mutation{MutationSetValue("Target/Databases/db1", map[string]any{"name": "db1"})},
	})
	require.IsType(t, applyResult{}, result)
	require.Equal(t, uint64(1), result.(applyResult).Index)

	raw, found, err := f.store.get("Target/Databases/db1")
	require.NoError(t, err)
	require.True(t, found)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "db1", decoded["name"])
}

func TestFSMPreconditionKeyExistsFails(t *testing.T) {
	f := newTestFSM(t)

	result := applyTxn(t, f, 1, Transaction{
		Preconditions: []Precondition{PreconditionExists("Plan/Databases/db1")},
		Mutations:     []Mutation{MutationSetValue("Plan/Databases/db1", 1)},
	})
	require.True(t, IsPreconditionFailed(result.(error)))

	_, found, err := f.store.get("Plan/Databases/db1")
	require.NoError(t, err)
	require.False(t, found, "mutation must not apply when a precondition fails")
}

func TestFSMPreconditionKeyAbsentSucceedsOnce(t *testing.T) {
	f := newTestFSM(t)
	txn := Transaction{
		Preconditions: []Precondition{PreconditionAbsent("Plan/Databases/db1")},
		Mutations:     []Mutation{MutationSetValue("Plan/Databases/db1", map[string]any{"name": "db1"})},
	}

	result := applyTxn(t, f, 1, txn)
	require.IsType(t, applyResult{}, result)

	result = applyTxn(t, f, 2, txn)
	require.True(t, IsPreconditionFailed(result.(error)), "second apply must fail: the key now exists")
}

func TestFSMPreconditionValueEquals(t *testing.T) {
	f := newTestFSM(t)
	applyTxn(t, f, 1, Transaction{
		Mutations: []Mutation{MutationSetValue("Target/CollectionGroups/db1/7/version", 3)},
	})

	result := applyTxn(t, f, 2, Transaction{
		Preconditions: []Precondition{PreconditionEquals("Target/CollectionGroups/db1/7/version", 3)},
		Mutations:     []Mutation{MutationSetValue("Target/CollectionGroups/db1/7/version", 4)},
	})
	require.IsType(t, applyResult{}, result)

	result = applyTxn(t, f, 3, Transaction{
		Preconditions: []Precondition{PreconditionEquals("Target/CollectionGroups/db1/7/version", 3)},
		Mutations:     []Mutation{MutationSetValue("Target/CollectionGroups/db1/7/version", 5)},
	})
	require.True(t, IsPreconditionFailed(result.(error)), "stale version precondition must fail")
}

func TestFSMPreconditionIntersectionEmpty(t *testing.T) {
	f := newTestFSM(t)
	applyTxn(t, f, 1, Transaction{
		Mutations: []Mutation{MutationSetValue("Plan/ReplicatedLogs/db1/9/participants", []string{"PRMR-a", "PRMR-b"})},
	})

	result := applyTxn(t, f, 2, Transaction{
		Preconditions: []Precondition{PreconditionNoIntersection("Plan/ReplicatedLogs/db1/9/participants", []string{"PRMR-c"})},
		Mutations:     []Mutation{MutationSetValue("Plan/ReplicatedLogs/db1/9/participants", []string{"PRMR-a", "PRMR-b", "PRMR-c"})},
	})
	require.IsType(t, applyResult{}, result)

	result = applyTxn(t, f, 3, Transaction{
		Preconditions: []Precondition{PreconditionNoIntersection("Plan/ReplicatedLogs/db1/9/participants", []string{"PRMR-a"})},
		Mutations:     []Mutation{MutationSetValue("Plan/ReplicatedLogs/db1/9/participants", []string{"PRMR-a"})},
	})
	require.True(t, IsPreconditionFailed(result.(error)), "PRMR-a is already a participant")
}

func TestFSMIncrement(t *testing.T) {
	f := newTestFSM(t)

	applyTxn(t, f, 1, Transaction{Mutations: []Mutation{MutationIncrementBy("Sync/LatestID", 50)}})
	applyTxn(t, f, 2, Transaction{Mutations: []Mutation{MutationIncrementBy("Sync/LatestID", 1)}})

	raw, found, err := f.store.get("Sync/LatestID")
	require.NoError(t, err)
	require.True(t, found)
	var n int64
	require.NoError(t, json.Unmarshal(raw, &n))
	require.Equal(t, int64(51), n)
}

func TestFSMDeleteSubtree(t *testing.T) {
	f := newTestFSM(t)
	applyTxn(t, f, 1, Transaction{Mutations: []Mutation{
		MutationSetValue("Plan/Collections/db1/1", "a"),
		MutationSetValue("Plan/Collections/db1/2", "b"),
	}})

	applyTxn(t, f, 2, Transaction{Mutations: []Mutation{MutationDeleteKey("Plan/Collections/db1/1")}})

	entries, err := f.store.scanPrefix("Plan/Collections/db1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	_, ok := entries["Plan/Collections/db1/2"]
	require.True(t, ok)
}

func TestFSMSnapshotRestoreRoundTrip(t *testing.T) {
	f := newTestFSM(t)
	applyTxn(t, f, 1, Transaction{Mutations: []Mutation{
		MutationSetValue("Plan/Databases/db1", map[string]any{"name": "db1"}),
		MutationSetValue("Plan/Databases/db2", map[string]any{"name": "db2"}),
	}})

	snap, err := f.Snapshot()
	require.NoError(t, err)

	restoreTarget := newTestFSM(t)

	// Persist/Restore are exercised directly against the in-memory
	// entries rather than through a real raft.SnapshotSink, since the
	// sink's on-disk bookkeeping is Raft's concern, not the FSM's.
	raw, err := json.Marshal(snap.(*fsmSnapshot).entries)
	require.NoError(t, err)
	require.NoError(t, restoreTarget.Restore(io.NopCloser(bytes.NewReader(raw))))

	entries, err := restoreTarget.store.scanPrefix("Plan/Databases")
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
