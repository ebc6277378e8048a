// Package clusterinfo is the cache-backed read facade coordinators use on
// the request hot path: collection lookups, shard lists, and the
// responsible-server mapping a query or a document request needs, all
// served from the in-memory agencycache.Cache mirror instead of a fresh
// agency round trip.
//
// GetCollection and GetResponsibleServer each have a non-throwing twin
// (GetCollectionNT, GetResponsibleServerNoDelay) that returns a zero value
// and false instead of an error, for callers that want to render a result
// directly without unwrapping an error. The other getters have no such
// twin and report failures only as errors.
package clusterinfo
