package enginebuilder

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronosdb/shardcoord/pkg/types"
)

type fakeTransport struct {
	mu         sync.Mutex
	setupCalls []types.ServerID
	teardowns  []types.ServerID
	failOn     types.ServerID
}

func (f *fakeTransport) Setup(_ context.Context, addr string, _ *Request) (*SetupResult, error) {
	server := types.ServerID(addr)
	f.mu.Lock()
	f.setupCalls = append(f.setupCalls, server)
	f.mu.Unlock()
	if server == f.failOn {
		return nil, errFakeSetup
	}
	return &SetupResult{EngineIDs: []string{"engine-" + addr}}, nil
}

func (f *fakeTransport) Teardown(_ context.Context, addr string, _ []string) error {
	f.mu.Lock()
	f.teardowns = append(f.teardowns, types.ServerID(addr))
	f.mu.Unlock()
	return nil
}

var errFakeSetup = fakeErr("setup failed")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func TestDeploySucceedsAcrossAllServers(t *testing.T) {
	requests := map[types.ServerID]*Request{
		"PRMR-a": {},
		"PRMR-b": {},
	}
	transport := &fakeTransport{}

	results, err := Deploy(context.Background(), requests, transport)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.ElementsMatch(t, []string{"engine-PRMR-a"}, results["PRMR-a"].EngineIDs)
}

func TestDeployTearsDownOnPartialFailure(t *testing.T) {
	requests := map[types.ServerID]*Request{
		"PRMR-a": {},
		"PRMR-b": {},
	}
	transport := &fakeTransport{failOn: "PRMR-b"}

	results, err := Deploy(context.Background(), requests, transport)
	require.Error(t, err)
	require.Nil(t, results)
	require.Contains(t, transport.teardowns, types.ServerID("PRMR-a"))
}
