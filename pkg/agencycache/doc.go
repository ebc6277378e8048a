// Package agencycache maintains an in-memory mirror of the agency's
// Target, Plan and Current subtrees, plus the cluster's unique-id
// counter. Every other component reads cluster state through here
// instead of issuing an agency read per call: the mirror refreshes on
// every watch wake-up, a ticker-plus-channel shape driven by agency
// notifications instead of a bare interval.
package agencycache
