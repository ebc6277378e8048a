package enginebuilder

import (
	"sort"
	"time"

	"github.com/chronosdb/shardcoord/pkg/types"
)

// LockEntry is one collection's lock requirement on a single DB-server,
// restricted to the shards of that collection the server must actually
// lock for this query.
type LockEntry struct {
	Collection types.CollectionID
	Mode       LockMode
	Shards     []string
}

// Options carries the per-query settings every per-server request needs
// regardless of which snippets it runs.
type Options struct {
	Coordinator        types.TransactionOrigin
	LockTimeout        time.Duration
	MaxTransactionSize int64
	WaitForSync        bool
}

// SnippetEntry is one snippet's share of a per-server request. AliasID
// differs from the Snippet's own ID only when the snippet was cloned
// because this server holds more than one shard the snippet's
// collection touches; Shard then names which one this clone addresses.
type SnippetEntry struct {
	AliasID    int
	SnippetID  int
	Shard      string
	Collection types.CollectionID
}

// TraverserEngineEntry is one graph traversal's share of a per-server
// request, for servers whose shards intersect the traversal's
// footprint.
type TraverserEngineEntry struct {
	GraphID string
	Shards  []string
}

// Request is one DB-server's complete engine-setup request.
type Request struct {
	Server     types.ServerID
	Database   types.DatabaseName
	Locking    []LockEntry
	Options    Options
	Snippets   []SnippetEntry
	Traversers []TraverserEngineEntry
}

// Alias records that AliasID is a clone of OriginalID's snippet on
// Server, so the coordinator can translate remote-node references back
// to the plan it built.
type Alias struct {
	Server     types.ServerID
	OriginalID int
	AliasID    int
}

// lockRank orders the locking section exclusive before write before
// read, matching the deadlock-avoidance ordering every DB-server
// expects its lock requests to arrive in.
func lockRank(m LockMode) int {
	switch m {
	case LockExclusive:
		return 0
	case LockWrite:
		return 1
	default:
		return 2
	}
}

// BuildRequests splits snippets into one Request per DB-server that
// holds at least one shard any snippet touches. Collections accessed
// only through a shard restriction are resolved to that single shard;
// otherwise every shard of the collection is in play. When one server
// holds more than one shard of a snippet's collection, the snippet is
// cloned once per shard and every clone is recorded as an Alias.
func BuildRequests(db types.DatabaseName, snippets []Snippet, locator ShardLocator, opts Options) (map[types.ServerID]*Request, []Alias, error) {
	requests := make(map[types.ServerID]*Request)
	var aliases []Alias
	nextAlias := 0
	for _, s := range snippets {
		if s.ID >= nextAlias {
			nextAlias = s.ID + 1
		}
	}

	requestFor := func(srv types.ServerID) *Request {
		r, ok := requests[srv]
		if !ok {
			r = &Request{Server: srv, Database: db, Options: opts}
			requests[srv] = r
		}
		return r
	}

	for _, s := range snippets {
		// shardsByServer groups, for this snippet, every (collection,
		// shard, mode) this server must lock.
		shardsByServer := make(map[types.ServerID][]collectionAccess)
		serverOrder := []types.ServerID{}

		for _, ca := range s.collectionAccesses() {
			shards, err := locator.ShardsOf(db, ca.id)
			if err != nil {
				return nil, nil, err
			}
			if ca.shard != "" {
				shards = []string{ca.shard}
			}
			for _, shard := range shards {
				servers, err := locator.ServersOf(db, ca.id, shard)
				if err != nil {
					return nil, nil, err
				}
				leader := servers.Leader()
				if leader == "" {
					continue
				}
				if _, seen := shardsByServer[leader]; !seen {
					serverOrder = append(serverOrder, leader)
				}
				shardsByServer[leader] = append(shardsByServer[leader], collectionAccess{id: ca.id, mode: ca.mode, shard: shard})
			}
		}

		for _, srv := range serverOrder {
			accesses := shardsByServer[srv]
			req := requestFor(srv)
			addLocking(req, accesses)

			byCollection := make(map[types.CollectionID][]string)
			for _, a := range accesses {
				byCollection[a.id] = append(byCollection[a.id], a.shard)
			}

			distinctShards := map[string]types.CollectionID{}
			for cid, shards := range byCollection {
				for _, sh := range shards {
					distinctShards[sh] = cid
				}
			}

			if len(distinctShards) <= 1 {
				shard := ""
				var cid types.CollectionID
				for sh, c := range distinctShards {
					shard, cid = sh, c
				}
				req.Snippets = append(req.Snippets, SnippetEntry{AliasID: s.ID, SnippetID: s.ID, Shard: shard, Collection: cid})
				continue
			}

			shardsSorted := make([]string, 0, len(distinctShards))
			for sh := range distinctShards {
				shardsSorted = append(shardsSorted, sh)
			}
			sort.Strings(shardsSorted)
			for _, sh := range shardsSorted {
				alias := nextAlias
				nextAlias++
				aliases = append(aliases, Alias{Server: srv, OriginalID: s.ID, AliasID: alias})
				req.Snippets = append(req.Snippets, SnippetEntry{AliasID: alias, SnippetID: s.ID, Shard: sh, Collection: distinctShards[sh]})
			}
		}

		for _, n := range s.Nodes {
			if n.Kind != NodeGraph || n.Graph == nil {
				continue
			}
			if err := addTraversers(db, requestFor, locator, n.Graph); err != nil {
				return nil, nil, err
			}
		}
	}

	return requests, aliases, nil
}

func addLocking(req *Request, accesses []collectionAccess) {
	byCollection := make(map[types.CollectionID]*LockEntry)
	var order []types.CollectionID
	for _, existing := range req.Locking {
		e := existing
		byCollection[e.Collection] = &e
		order = append(order, e.Collection)
	}
	for _, a := range accesses {
		e, ok := byCollection[a.id]
		if !ok {
			e = &LockEntry{Collection: a.id, Mode: a.mode}
			byCollection[a.id] = e
			order = append(order, a.id)
		}
		if a.mode > e.Mode {
			e.Mode = a.mode
		}
		if !containsShard(e.Shards, a.shard) {
			e.Shards = append(e.Shards, a.shard)
		}
	}

	req.Locking = req.Locking[:0]
	for _, cid := range order {
		req.Locking = append(req.Locking, *byCollection[cid])
	}
	sort.SliceStable(req.Locking, func(i, j int) bool {
		return lockRank(req.Locking[i].Mode) < lockRank(req.Locking[j].Mode)
	})
}

func containsShard(shards []string, shard string) bool {
	for _, s := range shards {
		if s == shard {
			return true
		}
	}
	return false
}

func addTraversers(db types.DatabaseName, requestFor func(types.ServerID) *Request, locator ShardLocator, g *GraphTraversal) error {
	byServer := make(map[types.ServerID][]string)
	var order []types.ServerID
	for _, cid := range append(append([]types.CollectionID{}, g.EdgeCollections...), g.VertexCollections...) {
		shards, err := locator.ShardsOf(db, cid)
		if err != nil {
			return err
		}
		for _, shard := range shards {
			servers, err := locator.ServersOf(db, cid, shard)
			if err != nil {
				return err
			}
			leader := servers.Leader()
			if leader == "" {
				continue
			}
			if _, ok := byServer[leader]; !ok {
				order = append(order, leader)
			}
			byServer[leader] = append(byServer[leader], shard)
		}
	}

	for _, srv := range order {
		req := requestFor(srv)
		req.Traversers = append(req.Traversers, TraverserEngineEntry{GraphID: g.ID, Shards: byServer[srv]})
	}
	return nil
}
