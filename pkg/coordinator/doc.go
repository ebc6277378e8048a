// Package coordinator is the glue layer that drives pkg/supervision's pure
// Check function against a live agency: it assembles a GroupState from the
// agencycache mirror and the health view, turns the Action Check returns
// into the corresponding agency.Transaction, and loops over every known
// collection group until all of them report NoActionRequired.
//
// Nothing here is pure. The decision logic lives in pkg/supervision; this
// package only does I/O: reading the cache, applying transactions through
// the agency node, and waiting on convergence via pkg/currentwatcher, the
// same imperative ticker-loop shape used to walk live entities and propose
// Raft commands one at a time.
package coordinator
