package health

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chronosdb/shardcoord/pkg/types"
)

func rawHealth(t *testing.T, sh types.ServerHealth) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(sh)
	require.NoError(t, err)
	return raw
}

func TestBuildDecodesEntries(t *testing.T) {
	now := time.Now()
	entries := map[string]json.RawMessage{
		"Supervision/Health/PRMR-a": rawHealth(t, types.ServerHealth{Status: types.ServerStatusGood, LastHeartbeatAcked: now}),
		"Supervision/Health/PRMR-b": rawHealth(t, types.ServerHealth{Status: types.ServerStatusFailed, LastHeartbeatAcked: now.Add(-time.Hour)}),
		"unrelated/path":           json.RawMessage(`{}`),
	}

	v := NewView(Config{})
	health := v.Build(entries, now)

	require.Len(t, health.Servers, 2)
	require.True(t, health.IsHealthy("PRMR-a"))
	require.False(t, health.IsHealthy("PRMR-b"))
	require.Equal(t, types.ServerID("PRMR-a"), health.Servers["PRMR-a"].ID)
}

func TestStalenessOverrideDowngradesGood(t *testing.T) {
	now := time.Now()
	entries := map[string]json.RawMessage{
		"Supervision/Health/PRMR-a": rawHealth(t, types.ServerHealth{Status: types.ServerStatusGood, LastHeartbeatAcked: now.Add(-2 * time.Minute)}),
	}

	v := NewView(Config{StaleAfter: 30 * time.Second})
	health := v.Build(entries, now)

	require.Equal(t, types.ServerStatusFailed, health.Servers["PRMR-a"].Status)
}

func TestStalenessDisabledTrustsAgency(t *testing.T) {
	now := time.Now()
	entries := map[string]json.RawMessage{
		"Supervision/Health/PRMR-a": rawHealth(t, types.ServerHealth{Status: types.ServerStatusGood, LastHeartbeatAcked: now.Add(-time.Hour)}),
	}

	v := NewView(Config{})
	health := v.Build(entries, now)

	require.Equal(t, types.ServerStatusGood, health.Servers["PRMR-a"].Status)
}

func TestHealthyServersFiltersByRole(t *testing.T) {
	now := time.Now()
	entries := map[string]json.RawMessage{
		"Supervision/Health/PRMR-a": rawHealth(t, types.ServerHealth{Status: types.ServerStatusGood, LastHeartbeatAcked: now}),
		"Supervision/Health/CRDN-a": rawHealth(t, types.ServerHealth{Status: types.ServerStatusGood, LastHeartbeatAcked: now}),
	}

	v := NewView(Config{})
	health := v.Build(entries, now)

	dbServers := health.HealthyServers(types.RoleDBServer)
	require.Equal(t, []types.ServerID{"PRMR-a"}, dbServers)
}
