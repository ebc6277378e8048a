package enginebuilder

import "github.com/chronosdb/shardcoord/pkg/types"

// LockMode is the access mode a plan node needs on a collection.
type LockMode int

const (
	LockRead LockMode = iota
	LockWrite
	LockExclusive
)

// NodeKind classifies one plan node.
type NodeKind string

const (
	// NodeGather marks a distribution boundary: its input is gathered
	// from whatever snippet sits below it.
	NodeGather NodeKind = "gather"
	// NodeRemote is a placeholder data source standing in for a sibling
	// snippet's output; reaching one closes the snippet currently open.
	NodeRemote NodeKind = "remote"
	// NodeCollection touches a collection's shards directly (scan,
	// insert, update, remove, index lookup).
	NodeCollection NodeKind = "collection"
	// NodeGraph is a graph traversal; it may touch shards on several
	// servers distinct from its surrounding snippet's own shard set.
	NodeGraph NodeKind = "graph"
	// NodeCalculation and other pure nodes carry no locking or shard
	// information of their own.
	NodeCalculation NodeKind = "calculation"
)

// Node is one node of a distributed execution plan's DAG, given in
// root-first topological order: Node 0 is the coordinator's final
// result, later nodes feed earlier ones.
type Node struct {
	ID           int
	Kind         NodeKind
	CollectionID types.CollectionID
	Mode         LockMode
	// ShardRestriction, if non-empty, scopes this node to a single shard
	// rather than every shard of CollectionID.
	ShardRestriction string
	Graph            *GraphTraversal
}

// GraphTraversal names the edge collections a NodeGraph node walks.
type GraphTraversal struct {
	ID              string
	EdgeCollections []types.CollectionID
	VertexCollections []types.CollectionID
}

// ExecutionPlan is the DAG the query layer hands to the builder.
type ExecutionPlan struct {
	Nodes []Node
}

// ShardLocator resolves a collection's shards and which servers hold
// each of them. Production
// callers back this with pkg/clusterinfo.
type ShardLocator interface {
	ShardsOf(db types.DatabaseName, cid types.CollectionID) ([]string, error)
	ServersOf(db types.DatabaseName, cid types.CollectionID, shard string) (types.ServerList, error)
}
