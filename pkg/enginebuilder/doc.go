// Package enginebuilder splits a distributed execution plan into one
// engine-setup request per DB-server and drives the fan-out: snippet
// accumulation walks the plan's node DAG into per-server snippets, a
// builder serializes each DB-server's share of the plan plus any graph
// traverser engines it needs, and Deploy sends every request in
// parallel under the caller's context (it adds no deadline of its own),
// cleaning up every engine it managed to open if any one request fails.
package enginebuilder
