package enginebuilder

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/chronosdb/shardcoord/pkg/metrics"
	"github.com/chronosdb/shardcoord/pkg/types"
)

// SetupResult is what a DB-server returns once it has opened every engine
// named in a Request.
type SetupResult struct {
	EngineIDs []string             `json:"engineIds"`
	OpenedAt  *timestamppb.Timestamp `json:"openedAt"`
}

// Transport is the per-DB-server RPC the fan-out drives. grpcTransport is
// the production implementation; tests supply a fake.
type Transport interface {
	Setup(ctx context.Context, addr string, req *Request) (*SetupResult, error)
	Teardown(ctx context.Context, addr string, engineIDs []string) error
}

// jsonCodec lets the engine-setup service exchange plain Go structs over
// gRPC without a protoc-generated message set: every Request/SetupResult
// field is already JSON-tagged, so standard encoding/json round-trips them
// as the wire format instead of protobuf binary.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

// grpcTransport dials one connection per DB-server and invokes the fixed
// engine-setup/teardown RPCs directly, bypassing a generated client stub.
type grpcTransport struct{}

// NewGRPCTransport builds the default Transport.
func NewGRPCTransport() Transport { return grpcTransport{} }

func (grpcTransport) Setup(ctx context.Context, addr string, req *Request) (*SetupResult, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("enginebuilder: dial %s: %w", addr, err)
	}
	defer conn.Close()

	var result SetupResult
	if err := conn.Invoke(ctx, "/enginebuilder.Engine/Setup", req, &result); err != nil {
		return nil, fmt.Errorf("enginebuilder: setup on %s: %w", addr, err)
	}
	return &result, nil
}

func (grpcTransport) Teardown(ctx context.Context, addr string, engineIDs []string) error {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	if err != nil {
		return fmt.Errorf("enginebuilder: dial %s: %w", addr, err)
	}
	defer conn.Close()

	return conn.Invoke(ctx, "/enginebuilder.Engine/Teardown", engineIDs, nil)
}

// Deploy sends every server's Request in parallel. If any one fails, every
// engine successfully opened so far is torn down before Deploy returns the
// triggering error: a partially set up query is never left running.
func Deploy(ctx context.Context, requests map[types.ServerID]*Request, transport Transport) (map[types.ServerID]*SetupResult, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.EngineSetupDuration)

	results := make(map[types.ServerID]*SetupResult, len(requests))
	addrs := make(map[types.ServerID]string, len(requests))
	for server := range requests {
		addrs[server] = string(server)
	}

	group, gctx := errgroup.WithContext(ctx)
	resultCh := make(chan struct {
		server types.ServerID
		result *SetupResult
	}, len(requests))

	for server, req := range requests {
		server, req := server, req
		group.Go(func() error {
			result, err := transport.Setup(gctx, addrs[server], req)
			if err != nil {
				return err
			}
			resultCh <- struct {
				server types.ServerID
				result *SetupResult
			}{server, result}
			return nil
		})
	}

	err := group.Wait()
	close(resultCh)
	for entry := range resultCh {
		results[entry.server] = entry.result
	}

	if err != nil {
		metrics.EngineSetupFailuresTotal.Inc()
		cleanupCtx := context.Background()
		for server, result := range results {
			if result == nil {
				continue
			}
			_ = transport.Teardown(cleanupCtx, addrs[server], result.EngineIDs)
		}
		return nil, err
	}

	return results, nil
}
