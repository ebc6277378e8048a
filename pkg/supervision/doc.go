// Package supervision implements the collection-group reconciliation
// decision: given a group's target, plan, and reported current state,
// decide the single next action that moves it closer to convergence.
//
// Check is a pure function, deliberately kept free of agency reads or
// writes: pkg/coordinator turns its result into a transaction
// (BuildActionTransaction) and assembles the GroupState this package
// consumes (BuildGroupState). Keeping the decision itself side-effect free makes
// every branch of the priority order exercisable with plain table
// tests, separate from the loop and I/O that drive it.
package supervision
