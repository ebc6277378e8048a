package repairs

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronosdb/shardcoord/pkg/agency"
	"github.com/chronosdb/shardcoord/pkg/types"
)

func TestBuildMoveShardTransactionJobBodyRoundTrip(t *testing.T) {
	action := MoveShard{
		DB: "myDb", CollectionID: 123, Shard: "s1",
		From: "db-from", To: "db-to", IsLeader: true,
	}
	now, err := time.Parse(time.RFC3339, "2018-03-07T15:20:01Z")
	require.NoError(t, err)

	txn, jobID := BuildMoveShardTransaction(action, "CRDN-1", now)
	require.NotEmpty(t, jobID)

	require.Len(t, txn.Mutations, 1)
	require.Len(t, txn.Preconditions, 1)
	assert.Equal(t, agency.PreconditionKeyAbsent, txn.Preconditions[0].Kind)

	path := "Target/ToDo/" + string(jobID)
	assert.Equal(t, path, txn.Preconditions[0].Path)
	assert.Equal(t, path, txn.Mutations[0].Path)

	var job MoveShardJob
	require.NoError(t, json.Unmarshal(txn.Mutations[0].Value, &job))
	assert.Equal(t, "moveShard", job.Type)
	assert.Equal(t, types.DatabaseName("myDb"), job.Database)
	assert.Equal(t, types.CollectionID(123), job.Collection)
	assert.Equal(t, "s1", job.Shard)
	assert.Equal(t, types.ServerID("db-from"), job.FromServer)
	assert.Equal(t, types.ServerID("db-to"), job.ToServer)
	assert.Equal(t, jobID, job.JobID)
	assert.Equal(t, "2018-03-07T15:20:01Z", job.TimeCreated)
	assert.Equal(t, types.ServerID("CRDN-1"), job.Creator)
	assert.True(t, job.IsLeader)
}

func TestBuildBeginRepairsTransactionPreconditionsOnOldBody(t *testing.T) {
	plan := types.CollectionPlan{
		CollectionTarget: types.CollectionTarget{
			ID: 22222222, Name: "follower", DistributeShardsLike: 11111111,
		},
		DeprecatedShardMap: map[string]types.ServerList{"s22": {serverA, serverB}},
	}
	action := BeginRepairs{CollectionID: 22222222, ProtoCollectionID: 11111111, RenameDistributeShardsLike: true}

	txn := BuildBeginRepairsTransaction("someDb", plan, action)
	require.Len(t, txn.Preconditions, 1)
	assert.Equal(t, "Plan/Collections/someDb/22222222", txn.Preconditions[0].Path)

	var want types.CollectionPlan
	require.NoError(t, json.Unmarshal(txn.Preconditions[0].Value, &want))
	assert.Equal(t, plan, want)

	var next types.CollectionPlan
	require.NoError(t, json.Unmarshal(txn.Mutations[0].Value, &next))
	assert.Equal(t, types.CollectionID(11111111), next.RepairingDistributeShardsLike)
	assert.Equal(t, types.CollectionID(0), next.DistributeShardsLike)
}

func TestBuildFixServerOrderTransactionReordersOneShard(t *testing.T) {
	plan := types.CollectionPlan{
		CollectionTarget: types.CollectionTarget{ID: 22222222, Name: "followingCollection"},
		DeprecatedShardMap: map[string]types.ServerList{
			"s22": {serverA, serverD, serverC, serverB},
		},
	}
	action := FixServerOrder{
		CollectionID: 22222222, Shard: "s22",
		Leader:         serverA,
		Followers:      []types.ServerID{serverD, serverC, serverB},
		ProtoFollowers: []types.ServerID{serverB, serverC, serverD},
	}

	txn := BuildFixServerOrderTransaction("someDb", plan, action)
	var next types.CollectionPlan
	require.NoError(t, json.Unmarshal(txn.Mutations[0].Value, &next))
	assert.Equal(t, types.ServerList{serverA, serverB, serverC, serverD}, next.DeprecatedShardMap["s22"])
}

func TestBuildFinishRepairsTransactionRecordsConvergedShardsAndRenames(t *testing.T) {
	plan := types.CollectionPlan{
		CollectionTarget: types.CollectionTarget{
			ID: 11111111, Name: "_frontend", RepairingDistributeShardsLike: 22222222,
		},
		DeprecatedShardMap: map[string]types.ServerList{"s11": {serverA, serverC}},
	}
	action := FinishRepairs{
		CollectionID: 11111111, ProtoCollectionID: 22222222,
		Shards: []ShardOutcome{{Shard: "s11", ProtoShard: "s22", Servers: types.ServerList{serverB, serverA}}},
	}

	txn := BuildFinishRepairsTransaction("someDb", plan, action)
	var next types.CollectionPlan
	require.NoError(t, json.Unmarshal(txn.Mutations[0].Value, &next))
	assert.Equal(t, types.CollectionID(22222222), next.DistributeShardsLike)
	assert.Equal(t, types.CollectionID(0), next.RepairingDistributeShardsLike)
	assert.Equal(t, types.ServerList{serverB, serverA}, next.DeprecatedShardMap["s11"])
}
