// Package agency implements the linearizable key tree that backs every
// other component: a Raft-replicated store addressed by slash-separated
// paths, written to only through preconditioned transactions.
//
// Readers always see a value that was actually committed; writers never
// overwrite a value they did not expect to find. There is no partial
// write: either every precondition in a transaction holds and every
// mutation applies, or nothing changes and the caller gets
// ErrPreconditionFailed.
package agency
