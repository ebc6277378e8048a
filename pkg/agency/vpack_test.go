package agency

import (
	"testing"

	velocypack "github.com/arangodb/go-velocypack"
	"github.com/stretchr/testify/require"
)

func TestDumpVPackRoundTrips(t *testing.T) {
	node := newTestNode(t)
	client := NewLocalClient(node)

	_, err := client.Apply(t.Context(), Transaction{
		Mutations: []Mutation{
			MutationSetValue("Target/Databases/db1", map[string]any{"name": "db1", "shards": float64(3)}),
		},
	})
	require.NoError(t, err)

	data, index, err := node.DumpVPack("Target/Databases")
	require.NoError(t, err)
	require.Greater(t, index, uint64(0))

	slice := velocypack.Slice(data)
	require.NoError(t, slice.AssertType(velocypack.Object))

	entrySlice, err := slice.Get("Target/Databases/db1")
	require.NoError(t, err)
	require.False(t, entrySlice.IsNone())

	name, err := entrySlice.Get("name")
	require.NoError(t, err)
	nameStr, err := name.GetString()
	require.NoError(t, err)
	require.Equal(t, "db1", nameStr)
}

func TestValueToVPack(t *testing.T) {
	raw := []byte(`{"writeConcern":2,"replicationFactor":3,"waitForSync":true}`)

	data, err := ValueToVPack(raw)
	require.NoError(t, err)

	slice := velocypack.Slice(data)
	require.NoError(t, slice.AssertType(velocypack.Object))

	wc, err := slice.Get("writeConcern")
	require.NoError(t, err)
	wcInt, err := wc.GetInt()
	require.NoError(t, err)
	require.EqualValues(t, 2, wcInt)
}
