package agency

import (
	"context"
	"encoding/json"
)

// Client is the interface every other component uses to talk to the
// agency. It is implemented by *Node for in-process callers; a future
// remote client (for a coordinator that is not itself an agency voter)
// can satisfy the same interface over RPC without its callers changing.
type Client interface {
	// Read returns every value stored under prefix, keyed by full path,
	// plus the Raft index the read is consistent as of.
	Read(ctx context.Context, prefix string) (map[string]json.RawMessage, uint64, error)

	// Apply commits txn as one atomic change and returns the Raft index
	// it committed at, or ErrPreconditionFailed if a precondition did
	// not hold.
	Apply(ctx context.Context, txn Transaction) (uint64, error)

	// Increment atomically adds delta to the int64 counter at path and
	// returns its value immediately after the increment, computed by the
	// FSM under the same Raft log entry that commits it so two
	// concurrent callers can never observe or derive the same value.
	Increment(ctx context.Context, path string, delta int64) (int64, error)

	// Watch subscribes to changes under prefix. The cancel function
	// must be called once the caller is done watching.
	Watch(ctx context.Context, prefix string) (<-chan struct{}, func())

	// IsLeader reports whether this client is backed by the current
	// Raft leader.
	IsLeader() bool
}

// localClient adapts a *Node to the Client interface.
type localClient struct {
	node *Node
}

// NewLocalClient wraps node as a Client.
func NewLocalClient(node *Node) Client {
	return &localClient{node: node}
}

func (c *localClient) Read(_ context.Context, prefix string) (map[string]json.RawMessage, uint64, error) {
	return c.node.Read(prefix)
}

func (c *localClient) Apply(ctx context.Context, txn Transaction) (uint64, error) {
	return c.node.Apply(ctx, txn)
}

func (c *localClient) Increment(ctx context.Context, path string, delta int64) (int64, error) {
	return c.node.Increment(ctx, path, delta)
}

func (c *localClient) Watch(_ context.Context, prefix string) (<-chan struct{}, func()) {
	return c.node.Watch(prefix)
}

func (c *localClient) IsLeader() bool {
	return c.node.IsLeader()
}
