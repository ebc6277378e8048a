// Package shardid parses and orders shard identifiers.
//
// A shard id always has the form "s<decimal>", optionally followed by a
// textual suffix (some fixtures in the wild carry one, e.g. "s100a"). Shard
// ids sort first by their numeric value, then by the suffix, never by plain
// byte comparison — "s2" must sort before "s10".
package shardid

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ID is a parsed shard identifier.
type ID struct {
	Raw    string
	Number uint64
	Suffix string
}

// Parse splits a raw shard id of the form "s<uint>[suffix]" into its numeric
// and suffix components. It returns an error if the id does not start with
// "s" followed by at least one digit.
func Parse(raw string) (ID, error) {
	if !strings.HasPrefix(raw, "s") {
		return ID{}, fmt.Errorf("shardid: %q does not start with 's'", raw)
	}
	rest := raw[1:]
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i == 0 {
		return ID{}, fmt.Errorf("shardid: %q has no numeric component", raw)
	}
	n, err := strconv.ParseUint(rest[:i], 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("shardid: %q: %w", raw, err)
	}
	return ID{Raw: raw, Number: n, Suffix: rest[i:]}, nil
}

// MustParse is like Parse but panics on error. Reserved for call sites that
// already validated the id (e.g. generated by New).
func MustParse(raw string) ID {
	id, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// New formats a shard id from a cluster-unique numeric value, e.g. New(42)
// == "s42".
func New(n uint64) string {
	return "s" + strconv.FormatUint(n, 10)
}

// Less reports whether a sorts strictly before b under shard-id version
// order: numeric component first, then the textual suffix lexically.
// Invalid ids fall back to plain string comparison so Less is always total.
func Less(a, b string) bool {
	pa, errA := Parse(a)
	pb, errB := Parse(b)
	if errA != nil || errB != nil {
		return a < b
	}
	if pa.Number != pb.Number {
		return pa.Number < pb.Number
	}
	return pa.Suffix < pb.Suffix
}

// Sort sorts ids in place using Less.
func Sort(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return Less(ids[i], ids[j]) })
}

// SortedKeys returns the keys of m in shard-id version order.
func SortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	Sort(out)
	return out
}
