package agency

import (
	"encoding/json"
	"errors"
	"fmt"
)

// PreconditionKind names one guard a transaction checks before it is
// allowed to apply its mutations.
type PreconditionKind int

const (
	// PreconditionKeyExists requires the path to hold some value.
	PreconditionKeyExists PreconditionKind = iota
	// PreconditionKeyAbsent requires the path to hold no value.
	PreconditionKeyAbsent
	// PreconditionValueEquals requires the path's value to deep-equal Value
	// once both are round-tripped through JSON.
	PreconditionValueEquals
	// PreconditionIntersectionEmpty requires that the string array stored
	// at the path share no element with Set. Used by the collection-group
	// supervisor to assert a server is not already a log participant
	// before adding it.
	PreconditionIntersectionEmpty
)

// Precondition is one guard evaluated against the tree before a
// transaction's mutations apply.
type Precondition struct {
	Kind  PreconditionKind `json:"kind"`
	Path  string           `json:"path"`
	Value json.RawMessage  `json:"value,omitempty"`
	Set   []string         `json:"set,omitempty"`
}

// PreconditionExists builds a "key exists" precondition.
func PreconditionExists(path string) Precondition {
	return Precondition{Kind: PreconditionKeyExists, Path: path}
}

// PreconditionAbsent builds a "key absent" precondition.
func PreconditionAbsent(path string) Precondition {
	return Precondition{Kind: PreconditionKeyAbsent, Path: path}
}

// PreconditionEquals builds a "value equals" precondition. value is
// marshaled immediately so the caller can mutate its source afterward.
func PreconditionEquals(path string, value any) Precondition {
	raw, err := json.Marshal(value)
	if err != nil {
		raw = json.RawMessage("null")
	}
	return Precondition{Kind: PreconditionValueEquals, Path: path, Value: raw}
}

// PreconditionNoIntersection builds an "intersection empty" precondition
// against the string array stored at path.
func PreconditionNoIntersection(path string, set []string) Precondition {
	return Precondition{Kind: PreconditionIntersectionEmpty, Path: path, Set: set}
}

// MutationKind names one tree edit a transaction performs once its
// preconditions hold.
type MutationKind int

const (
	// MutationSet replaces the value at Path with Value. Only that one
	// key is written; parent paths get no entries of their own.
	MutationSet MutationKind = iota
	// MutationDelete removes Path and everything beneath it.
	MutationDelete
	// MutationIncrement adds Value (decoded as int64, default 1) to the
	// int64 currently stored at Path, creating it at 0 first if absent.
	MutationIncrement
)

// Mutation is one tree edit applied after every precondition in the
// owning transaction has been checked.
type Mutation struct {
	Kind  MutationKind    `json:"kind"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

// MutationSetValue builds a "set" mutation. value is marshaled
// immediately.
func MutationSetValue(path string, value any) Mutation {
	raw, err := json.Marshal(value)
	if err != nil {
		raw = json.RawMessage("null")
	}
	return Mutation{Kind: MutationSet, Path: path, Value: raw}
}

// MutationDeleteKey builds a "delete" mutation.
func MutationDeleteKey(path string) Mutation {
	return Mutation{Kind: MutationDelete, Path: path}
}

// MutationIncrementBy builds an "increment" mutation.
func MutationIncrementBy(path string, delta int64) Mutation {
	raw, _ := json.Marshal(delta)
	return Mutation{Kind: MutationIncrement, Path: path, Value: raw}
}

// Transaction bundles preconditions with the mutations they guard. The
// transaction commits as one Raft log entry: every precondition holds
// and every mutation applies, or none of them do.
type Transaction struct {
	Preconditions []Precondition `json:"preconditions,omitempty"`
	Mutations     []Mutation     `json:"mutations"`
}

// ErrPreconditionFailed is returned when a transaction's preconditions
// did not hold at apply time. FailedPath names the first precondition
// that failed, for diagnostics; callers should not retry without
// re-reading the tree.
type ErrPreconditionFailed struct {
	FailedPath string
	Kind       PreconditionKind
}

func (e *ErrPreconditionFailed) Error() string {
	return fmt.Sprintf("agency: precondition %d failed at %q", e.Kind, e.FailedPath)
}

// IsPreconditionFailed reports whether err is an ErrPreconditionFailed.
func IsPreconditionFailed(err error) bool {
	var pf *ErrPreconditionFailed
	return errors.As(err, &pf)
}
