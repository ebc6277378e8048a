package types

// Shard is a pure name: it references the sheaf's replicated log and the
// set of servers responsible for it, but owns neither.
type Shard struct {
	ID           string
	CollectionID CollectionID
	SheafIndex   int
	Servers      ServerList
}

// Leader returns the shard's current leader, or "" if unplaced.
func (s Shard) Leader() ServerID { return s.Servers.Leader() }

// IndexKind tags which variant an Index record carries. Real index
// implementations (B-tree, geo, fulltext, hash, skiplist, primary) live in
// the storage engine, out of scope here; the core only needs to name them
// and carry their declared fields.
type IndexKind string

const (
	IndexPrimary   IndexKind = "primary"
	IndexEdge      IndexKind = "edge"
	IndexHash      IndexKind = "hash"
	IndexSkiplist  IndexKind = "skiplist"
	IndexGeo       IndexKind = "geo"
	IndexFulltext  IndexKind = "fulltext"
)

// Index describes one index declared on a collection.
type Index struct {
	ID           string
	CollectionID CollectionID
	Kind         IndexKind
	Fields       []string
	Unique       bool
	Sparse       bool
	Name         string
}

// ImplicitIndexes returns the indexes every collection of the given kind
// carries without being asked: the primary index always, plus _from/_to
// edge indexes for edge collections.
func ImplicitIndexes(cid CollectionID, kind CollectionKind) []Index {
	out := []Index{{
		ID:           "0",
		CollectionID: cid,
		Kind:         IndexPrimary,
		Fields:       []string{"_key"},
		Unique:       true,
		Name:         "primary",
	}}
	if kind == CollectionKindEdge {
		out = append(out,
			Index{ID: "1", CollectionID: cid, Kind: IndexEdge, Fields: []string{"_from"}, Name: "edge_from"},
			Index{ID: "2", CollectionID: cid, Kind: IndexEdge, Fields: []string{"_to"}, Name: "edge_to"},
		)
	}
	return out
}
