package agency

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	bolt "go.etcd.io/bbolt"
)

var bucketTree = []byte("tree")

// treeStore is the single-bucket BoltDB backing for the agency key tree.
// Every entry is addressed by its full slash-separated path and stored
// as a raw JSON value; there is no schema at this layer, document shape
// is entirely up to callers.
type treeStore struct {
	db *bolt.DB
}

func openTreeStore(dataDir string) (*treeStore, error) {
	dbPath := filepath.Join(dataDir, "agency.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("agency: open tree store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTree)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("agency: create tree bucket: %w", err)
	}

	return &treeStore{db: db}, nil
}

func (s *treeStore) close() error {
	return s.db.Close()
}

func normalizePath(path string) string {
	return strings.Trim(path, "/")
}

func (s *treeStore) get(path string) (json.RawMessage, bool, error) {
	key := []byte(normalizePath(path))
	var value json.RawMessage
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTree)
		v := b.Get(key)
		if v == nil {
			return nil
		}
		found = true
		value = append(json.RawMessage(nil), v...)
		return nil
	})
	return value, found, err
}

// scanPrefix returns every key under prefix (prefix itself included if
// present), keyed by their full normalized path.
func (s *treeStore) scanPrefix(prefix string) (map[string]json.RawMessage, error) {
	prefix = normalizePath(prefix)
	out := make(map[string]json.RawMessage)

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketTree).Cursor()
		var seekPrefix []byte
		if prefix != "" {
			seekPrefix = []byte(prefix)
		}
		for k, v := c.Seek(seekPrefix); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			rest := strings.TrimPrefix(string(k), prefix)
			if prefix != "" && rest != "" && rest[0] != '/' {
				continue
			}
			out[string(k)] = append(json.RawMessage(nil), v...)
		}
		return nil
	})
	return out, err
}

func (s *treeStore) put(tx *bolt.Tx, path string, value json.RawMessage) error {
	return tx.Bucket(bucketTree).Put([]byte(normalizePath(path)), value)
}

func (s *treeStore) deleteSubtree(tx *bolt.Tx, path string) error {
	path = normalizePath(path)
	b := tx.Bucket(bucketTree)
	c := b.Cursor()
	var toDelete [][]byte
	for k, _ := c.Seek([]byte(path)); k != nil && strings.HasPrefix(string(k), path); k, _ = c.Next() {
		rest := strings.TrimPrefix(string(k), path)
		if rest != "" && rest[0] != '/' {
			continue
		}
		toDelete = append(toDelete, append([]byte(nil), k...))
	}
	for _, k := range toDelete {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (s *treeStore) increment(tx *bolt.Tx, path string, delta int64) (int64, error) {
	path = normalizePath(path)
	b := tx.Bucket(bucketTree)
	current := int64(0)
	if v := b.Get([]byte(path)); v != nil {
		if err := json.Unmarshal(v, &current); err != nil {
			return 0, fmt.Errorf("agency: increment %q: stored value is not an int64: %w", path, err)
		}
	}
	current += delta
	raw, err := json.Marshal(current)
	if err != nil {
		return 0, err
	}
	return current, b.Put([]byte(path), raw)
}

// sortedKeys returns m's keys in deterministic order, used by the FSM's
// Restore and by Node.DumpVPack so their output order is reproducible.
func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
