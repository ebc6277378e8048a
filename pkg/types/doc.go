// Package types defines the data model shared by every shardcoord
// component: databases, collection groups, collections, shards, replicated
// logs, servers and indexes, plus the identifiers and small value types tying
// them together.
//
// Everything in this package is a plain value type. None of it talks to the
// agency directly — agencycache and agencywriter are responsible for
// marshaling these types to and from the key layout described in the design
// document.
package types
