package enginebuilder

import "github.com/chronosdb/shardcoord/pkg/types"

// Snippet is one distribution unit of a plan: a contiguous run of nodes
// that runs together on whichever DB-servers hold its shards.
type Snippet struct {
	ID    int
	Nodes []Node
}

// collectionAccess is one collection touched by a snippet, with the
// lock mode it needs and an optional single-shard restriction.
type collectionAccess struct {
	id    types.CollectionID
	mode  LockMode
	shard string
}

// collectionAccesses returns the distinct collections this snippet
// touches, in first-seen order.
func (s Snippet) collectionAccesses() []collectionAccess {
	seen := make(map[collectionAccess]bool)
	var out []collectionAccess
	for _, n := range s.Nodes {
		if n.Kind != NodeCollection {
			continue
		}
		ca := collectionAccess{id: n.CollectionID, mode: n.Mode, shard: n.ShardRestriction}
		if seen[ca] {
			continue
		}
		seen[ca] = true
		out = append(out, ca)
	}
	return out
}

// Accumulate walks plan's nodes top-down (coordinator result first,
// collection scans last) and splits them into snippets: a new snippet
// opens at every sink GatherNode, absorbs every node that follows until
// the snippet's own data source turns out to be a remote snippet's
// output, at which point it closes. Snippet 0 is always the
// coordinator-resident part above the first GatherNode.
func Accumulate(plan ExecutionPlan) []Snippet {
	type frame struct {
		snippet *Snippet
	}

	root := &Snippet{ID: 0}
	stack := []*frame{{snippet: root}}
	var closed []Snippet
	nextID := 1

	for _, n := range plan.Nodes {
		top := stack[len(stack)-1]
		top.snippet.Nodes = append(top.snippet.Nodes, n)

		switch n.Kind {
		case NodeGather:
			stack = append(stack, &frame{snippet: &Snippet{ID: nextID}})
			nextID++
		case NodeRemote:
			finished := stack[len(stack)-1]
			closed = append(closed, *finished.snippet)
			stack = stack[:len(stack)-1]
		}
	}

	// Whatever is still open when the walk ends (the innermost
	// snippets, usually terminating in collection scans with no
	// further remote boundary) closes here, in LIFO order so the
	// deepest/most-recently-opened snippet is reported first.
	for i := len(stack) - 1; i >= 0; i-- {
		closed = append(closed, *stack[i].snippet)
	}

	return closed
}
