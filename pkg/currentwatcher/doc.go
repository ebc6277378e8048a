// Package currentwatcher watches the agency's Current tree for the
// entities a create-collection request just wrote to Plan/Target,
// reporting back once every one of them has either converged or failed.
//
// Each watched id carries one predicate (a collection's shard set, or a
// replicated log's supervision state); a shared Result aggregates their
// outcomes from many producers into one consumer.
package currentwatcher
