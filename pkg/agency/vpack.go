package agency

import (
	"encoding/json"
	"fmt"

	velocypack "github.com/arangodb/go-velocypack"
)

// DumpVPack renders every key under prefix as a single VelocyPack object,
// keyed by full path, for tooling that expects the wire format the rest of
// the cluster uses rather than the JSON this package stores values as
// internally.
func (n *Node) DumpVPack(prefix string) ([]byte, uint64, error) {
	entries, index, err := n.Read(prefix)
	if err != nil {
		return nil, 0, err
	}

	var b velocypack.Builder
	if err := b.OpenObject(); err != nil {
		return nil, 0, fmt.Errorf("agency: vpack dump: open object: %w", err)
	}
	for _, key := range sortedKeys(entries) {
		var decoded any
		if err := json.Unmarshal(entries[key], &decoded); err != nil {
			return nil, 0, fmt.Errorf("agency: vpack dump: decode %q: %w", key, err)
		}
		valueSlice, err := velocypack.Marshal(decoded)
		if err != nil {
			return nil, 0, fmt.Errorf("agency: vpack dump: marshal %q: %w", key, err)
		}
		if err := b.AddKeyValue(key, velocypack.NewSliceValue(valueSlice)); err != nil {
			return nil, 0, fmt.Errorf("agency: vpack dump: add %q: %w", key, err)
		}
	}
	if err := b.Close(); err != nil {
		return nil, 0, fmt.Errorf("agency: vpack dump: close object: %w", err)
	}

	slice, err := b.Slice()
	if err != nil {
		return nil, 0, fmt.Errorf("agency: vpack dump: slice: %w", err)
	}
	return []byte(slice), index, nil
}

// ValueToVPack re-encodes a single stored JSON value as a VelocyPack slice,
// for callers that already hold a decoded tree entry (a watch callback, a
// coordinator read) and want to hand it to wire-compatible tooling without
// a round trip through Read.
func ValueToVPack(raw json.RawMessage) ([]byte, error) {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("agency: vpack encode: %w", err)
	}
	slice, err := velocypack.Marshal(decoded)
	if err != nil {
		return nil, fmt.Errorf("agency: vpack encode: %w", err)
	}
	return []byte(slice), nil
}
