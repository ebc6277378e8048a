// Package agencywriter turns a planner decision (new collection groups,
// replicated logs, and collections to materialize, with their planned
// server assignments) into the single atomic agency transaction that
// creates them, plus the paired "undo" and "finish" transactions that
// bracket the creation.
//
// Every write goes through pkg/agency's precondition/mutation model: one
// Transaction per whole request, so the write is genuinely atomic across
// every entity it touches.
package agencywriter
