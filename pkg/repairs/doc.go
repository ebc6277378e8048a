// Package repairs plans and executes the moves needed to bring a
// distributeShardsLike follower collection's shard placement back in line
// with its prototype.
//
// Unlike pkg/supervision's one-action-per-invocation model, Plan computes a
// whole sequence of actions in one call: BeginRepairs marks the collection
// as mid-repair (renaming distributeShardsLike to
// repairingDistributeShardsLike so a concurrent planner never reuses it),
// MoveShard and FixServerOrder bring each shard's server list in line one
// step at a time, and FinishRepairs renames the relation back and records
// the converged server lists. The caller executes the sequence job by job,
// waiting for each MoveShard to land in Current before issuing the next.
package repairs
