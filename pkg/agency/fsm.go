package agency

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"
	bolt "go.etcd.io/bbolt"
)

// Command is the single entry type written to the Raft log. The agency
// tree has exactly one shape of change: a transaction. Op is kept
// anyway so the log stays self-describing if a second entry kind is
// ever needed.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const opTransaction = "txn"

// applyResult is the value returned from Apply on success, surfaced to
// the caller through raft.ApplyFuture.Response(). Increments carries the
// post-mutation value of every MutationIncrement in the transaction,
// keyed by normalized path, so callers that need the atomically-updated
// counter (such as the id allocator) never have to re-read it and race
// another Apply.
type applyResult struct {
	Index      uint64
	Increments map[string]int64
}

// fsm is the Raft finite state machine over the agency tree. Every
// Apply call runs under mu, so preconditions are checked against a
// value that cannot change before the matching mutations commit.
type fsm struct {
	mu       sync.Mutex
	store    *treeStore
	watchers *watcherRegistry
	index    uint64
}

func newFSM(store *treeStore, watchers *watcherRegistry) *fsm {
	return &fsm{store: store, watchers: watchers}
}

// Apply applies one committed Raft log entry to the tree.
func (f *fsm) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("agency: unmarshal command: %w", err)
	}

	if cmd.Op != opTransaction {
		return fmt.Errorf("agency: unknown command op %q", cmd.Op)
	}

	var txn Transaction
	if err := json.Unmarshal(cmd.Data, &txn); err != nil {
		return fmt.Errorf("agency: unmarshal transaction: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var touched []string
	var increments map[string]int64
	err := f.store.db.Update(func(tx *bolt.Tx) error {
		if failed, err := f.checkPreconditions(tx, txn.Preconditions); err != nil {
			return err
		} else if failed != nil {
			return failed
		}
		paths, incs, err := f.applyMutations(tx, txn.Mutations)
		touched = paths
		increments = incs
		return err
	})
	if err != nil {
		return err
	}

	f.index = log.Index
	if f.watchers != nil {
		f.watchers.notify(touched)
	}
	return applyResult{Index: log.Index, Increments: increments}
}

func (f *fsm) checkPreconditions(tx *bolt.Tx, pcs []Precondition) (*ErrPreconditionFailed, error) {
	b := tx.Bucket(bucketTree)
	for _, pc := range pcs {
		key := []byte(normalizePath(pc.Path))
		value := b.Get(key)

		switch pc.Kind {
		case PreconditionKeyExists:
			if value == nil {
				return &ErrPreconditionFailed{FailedPath: pc.Path, Kind: pc.Kind}, nil
			}
		case PreconditionKeyAbsent:
			if value != nil {
				return &ErrPreconditionFailed{FailedPath: pc.Path, Kind: pc.Kind}, nil
			}
		case PreconditionValueEquals:
			if !jsonEqual(value, pc.Value) {
				return &ErrPreconditionFailed{FailedPath: pc.Path, Kind: pc.Kind}, nil
			}
		case PreconditionIntersectionEmpty:
			var current []string
			if value != nil {
				if err := json.Unmarshal(value, &current); err != nil {
					return nil, fmt.Errorf("agency: precondition at %q: %w", pc.Path, err)
				}
			}
			if stringSetsIntersect(current, pc.Set) {
				return &ErrPreconditionFailed{FailedPath: pc.Path, Kind: pc.Kind}, nil
			}
		default:
			return nil, fmt.Errorf("agency: unknown precondition kind %d at %q", pc.Kind, pc.Path)
		}
	}
	return nil, nil
}

func (f *fsm) applyMutations(tx *bolt.Tx, muts []Mutation) ([]string, map[string]int64, error) {
	touched := make([]string, 0, len(muts))
	var increments map[string]int64
	for _, mut := range muts {
		touched = append(touched, normalizePath(mut.Path))
		switch mut.Kind {
		case MutationSet:
			if err := f.store.put(tx, mut.Path, mut.Value); err != nil {
				return touched, increments, err
			}
		case MutationDelete:
			if err := f.store.deleteSubtree(tx, mut.Path); err != nil {
				return touched, increments, err
			}
		case MutationIncrement:
			var delta int64 = 1
			if len(mut.Value) > 0 {
				if err := json.Unmarshal(mut.Value, &delta); err != nil {
					return touched, increments, fmt.Errorf("agency: increment mutation at %q: %w", mut.Path, err)
				}
			}
			newValue, err := f.store.increment(tx, mut.Path, delta)
			if err != nil {
				return touched, increments, err
			}
			if increments == nil {
				increments = make(map[string]int64, 1)
			}
			increments[normalizePath(mut.Path)] = newValue
		default:
			return touched, increments, fmt.Errorf("agency: unknown mutation kind %d at %q", mut.Kind, mut.Path)
		}
	}
	return touched, increments, nil
}

func jsonEqual(a, b json.RawMessage) bool {
	if len(a) == 0 || len(b) == 0 {
		return bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b))
	}
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	ab, _ := json.Marshal(av)
	bb, _ := json.Marshal(bv)
	return bytes.Equal(ab, bb)
}

func stringSetsIntersect(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}

// Snapshot implements raft.FSM. The whole tree is dumped as a flat path
// to value map, an "encode everything, decode everything" shape keyed
// by path.
func (f *fsm) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.store.scanPrefix("")
	if err != nil {
		return nil, fmt.Errorf("agency: snapshot scan: %w", err)
	}
	return &fsmSnapshot{entries: entries}, nil
}

// Restore implements raft.FSM.
func (f *fsm) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var entries map[string]json.RawMessage
	if err := json.NewDecoder(rc).Decode(&entries); err != nil {
		return fmt.Errorf("agency: restore decode: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.store.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketTree); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		b, err := tx.CreateBucket(bucketTree)
		if err != nil {
			return err
		}
		for _, path := range sortedKeys(entries) {
			if err := b.Put([]byte(path), entries[path]); err != nil {
				return err
			}
		}
		return nil
	})
}

type fsmSnapshot struct {
	entries map[string]json.RawMessage
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s.entries); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *fsmSnapshot) Release() {}
