package agency

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/chronosdb/shardcoord/pkg/log"
)

// Config holds the configuration needed to start one agency node.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string

	// ApplyTimeout bounds how long Apply waits for a transaction to
	// commit. Zero selects a 5s default.
	ApplyTimeout time.Duration
}

// Node is one voting member of the agency's Raft cluster. It owns the
// tree store, the FSM wrapping it, and the watcher registry notified on
// every commit.
type Node struct {
	nodeID   string
	bindAddr string
	dataDir  string

	applyTimeout time.Duration

	raft      *raft.Raft
	fsm       *fsm
	store     *treeStore
	watchers  *watcherRegistry
	transport *raft.NetworkTransport
}

// NewNode creates a Node and opens its local tree store, but does not
// start Raft; call Bootstrap or Join next.
func NewNode(cfg Config) (*Node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("agency: create data dir: %w", err)
	}

	store, err := openTreeStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	watchers := newWatcherRegistry()
	applyTimeout := cfg.ApplyTimeout
	if applyTimeout == 0 {
		applyTimeout = 5 * time.Second
	}

	return &Node{
		nodeID:       cfg.NodeID,
		bindAddr:     cfg.BindAddr,
		dataDir:      cfg.DataDir,
		applyTimeout: applyTimeout,
		fsm:          newFSM(store, watchers),
		store:        store,
		watchers:     watchers,
	}, nil
}

func raftConfig(nodeID string) *raft.Config {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(nodeID)

	// Tuned for sub-10s failover on a LAN-latency agency cluster rather
	// than hashicorp/raft's WAN-conservative defaults.
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond
	return config
}

func (n *Node) startRaft(config *raft.Config) error {
	addr, err := net.ResolveTCPAddr("tcp", n.bindAddr)
	if err != nil {
		return fmt.Errorf("agency: resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(n.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("agency: create transport: %w", err)
	}
	n.transport = transport

	snapshotStore, err := raft.NewFileSnapshotStore(n.dataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("agency: create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(n.dataDir, "raft-log.db"))
	if err != nil {
		return fmt.Errorf("agency: create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(n.dataDir, "raft-stable.db"))
	if err != nil {
		return fmt.Errorf("agency: create stable store: %w", err)
	}

	r, err := raft.NewRaft(config, n.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("agency: create raft: %w", err)
	}
	n.raft = r
	return nil
}

// Bootstrap starts a brand new single-node agency cluster with this
// node as its only voter.
func (n *Node) Bootstrap() error {
	config := raftConfig(n.nodeID)
	if err := n.startRaft(config); err != nil {
		return err
	}

	configuration := raft.Configuration{
		Servers: []raft.Server{{ID: config.LocalID, Address: n.transport.LocalAddr()}},
	}
	if err := n.raft.BootstrapCluster(configuration).Error(); err != nil {
		return fmt.Errorf("agency: bootstrap cluster: %w", err)
	}

	log.WithComponent("agency").Info().Str("node", n.nodeID).Msg("bootstrapped single-node agency cluster")
	return nil
}

// JoinExisting starts Raft for this node without bootstrapping a new
// configuration. The caller is expected to have already been added as
// a voter by the leader via AddVoter.
func (n *Node) JoinExisting() error {
	config := raftConfig(n.nodeID)
	return n.startRaft(config)
}

// AddVoter adds a peer to the cluster. Only the leader can do this
// usefully; non-leaders get raft.ErrNotLeader surfaced through the
// future.
func (n *Node) AddVoter(ctx context.Context, nodeID, address string) error {
	if n.raft == nil {
		return fmt.Errorf("agency: raft not started")
	}
	timeout := remainingOr(ctx, 10*time.Second)
	future := n.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, timeout)
	return future.Error()
}

// RemoveServer removes a peer from the cluster.
func (n *Node) RemoveServer(ctx context.Context, nodeID string) error {
	if n.raft == nil {
		return fmt.Errorf("agency: raft not started")
	}
	timeout := remainingOr(ctx, 10*time.Second)
	future := n.raft.RemoveServer(raft.ServerID(nodeID), 0, timeout)
	return future.Error()
}

// IsLeader reports whether this node currently holds Raft leadership.
func (n *Node) IsLeader() bool {
	return n.raft != nil && n.raft.State() == raft.Leader
}

// LeaderAddress returns the bind address of the current leader, or ""
// if none is known.
func (n *Node) LeaderAddress() string {
	if n.raft == nil {
		return ""
	}
	return string(n.raft.Leader())
}

// ClusterServers returns the current Raft configuration's member list.
func (n *Node) ClusterServers() ([]raft.Server, error) {
	if n.raft == nil {
		return nil, fmt.Errorf("agency: raft not started")
	}
	future := n.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, err
	}
	return future.Configuration().Servers, nil
}

// Apply submits a transaction to the Raft log and blocks until it
// commits (or the context/ApplyTimeout expires). It returns the
// committed Raft index, the logical timestamp watchers and waiters
// key on.
func (n *Node) Apply(ctx context.Context, txn Transaction) (uint64, error) {
	result, err := n.apply(ctx, txn)
	if err != nil {
		return 0, err
	}
	return result.Index, nil
}

// Increment atomically adds delta to the int64 counter at path and
// returns its value immediately after the increment, with no read
// window a concurrent Increment could land in between: the FSM computes
// the new value under the same Raft log entry that commits it, and this
// method returns that value directly instead of issuing a follow-up
// Read.
func (n *Node) Increment(ctx context.Context, path string, delta int64) (int64, error) {
	result, err := n.apply(ctx, Transaction{Mutations: []Mutation{MutationIncrementBy(path, delta)}})
	if err != nil {
		return 0, err
	}
	value, ok := result.Increments[normalizePath(path)]
	if !ok {
		return 0, fmt.Errorf("agency: increment at %q: no result reported", path)
	}
	return value, nil
}

func (n *Node) apply(ctx context.Context, txn Transaction) (applyResult, error) {
	if n.raft == nil {
		return applyResult{}, fmt.Errorf("agency: raft not started")
	}
	if !n.IsLeader() {
		return applyResult{}, fmt.Errorf("agency: not the leader, current leader %q", n.LeaderAddress())
	}

	data, err := json.Marshal(Command{Op: opTransaction, Data: mustMarshal(txn)})
	if err != nil {
		return applyResult{}, fmt.Errorf("agency: marshal transaction: %w", err)
	}

	timeout := remainingOr(ctx, n.applyTimeout)
	future := n.raft.Apply(data, timeout)
	if err := future.Error(); err != nil {
		return applyResult{}, fmt.Errorf("agency: apply: %w", err)
	}

	switch resp := future.Response().(type) {
	case applyResult:
		return resp, nil
	case error:
		return applyResult{}, resp
	default:
		return applyResult{}, fmt.Errorf("agency: unexpected apply response %T", resp)
	}
}

// Read returns every value currently stored under prefix, keyed by
// full path, together with the Raft index as of which the read was
// consistent. Reads are served from the local tree directly; callers
// that need linearizable reads should route them through the leader
// and verify IsLeader first.
func (n *Node) Read(prefix string) (map[string]json.RawMessage, uint64, error) {
	n.fsm.mu.Lock()
	idx := n.fsm.index
	n.fsm.mu.Unlock()

	entries, err := n.store.scanPrefix(prefix)
	return entries, idx, err
}

// Watch subscribes to changes under prefix. The returned channel
// receives a value whenever a committed transaction touches a path
// under prefix; callers should re-read after every receive.
func (n *Node) Watch(prefix string) (<-chan struct{}, func()) {
	return n.watchers.subscribe(prefix)
}

// AppliedIndex returns the last Raft index applied to the local FSM.
func (n *Node) AppliedIndex() uint64 {
	n.fsm.mu.Lock()
	defer n.fsm.mu.Unlock()
	return n.fsm.index
}

// Shutdown stops Raft and closes the local store.
func (n *Node) Shutdown() error {
	if n.raft != nil {
		if err := n.raft.Shutdown().Error(); err != nil {
			return fmt.Errorf("agency: raft shutdown: %w", err)
		}
	}
	return n.store.close()
}

func remainingOr(ctx context.Context, fallback time.Duration) time.Duration {
	if ctx == nil {
		return fallback
	}
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 {
			return d
		}
	}
	return fallback
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return raw
}
