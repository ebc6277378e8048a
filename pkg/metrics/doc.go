/*
Package metrics provides Prometheus metrics collection and exposition for
the shard coordinator.

It defines metrics for the agency's Raft node, reconciliation, repairs,
the current-watcher, cluster-info lookups, reboot callbacks and engine
setup, and exposes them over HTTP for scraping. Only the Collector (agency
leader state, applied index and group counts) and pkg/enginebuilder
(engine setup) record values; the other metrics are registered, but no
package in this module updates them.

# Metrics Catalog

Agency metrics:

shardcoord_agency_is_leader:
  - Gauge. Whether this agency node is the Raft leader (1=leader, 0=follower).

shardcoord_agency_peers_total:
  - Gauge. Total agency Raft peers.

shardcoord_agency_applied_index:
  - Gauge. Last applied agency Raft log index.

shardcoord_agency_apply_duration_seconds:
  - Histogram. Time to commit one agency write transaction.

shardcoord_agency_precondition_failures_total:
  - Counter. Agency transactions rejected by a failed precondition.

Supervision metrics:

shardcoord_collection_groups_total{database}:
  - Gauge. Collection groups with a Target entry, by database.

shardcoord_supervision_actions_total{action}:
  - Counter. Supervision actions applied, by action kind.

shardcoord_reconciliation_tick_duration_seconds:
  - Histogram. Time for one reconciliation tick over every group.

shardcoord_reconciliation_cycles_total:
  - Counter. Reconciliation ticks completed.

shardcoord_converged_groups_total{database}:
  - Gauge. Groups currently at NoActionRequired, by database.

Repair metrics:

shardcoord_repair_plans_total{outcome}:
  - Counter. Shard-repair plans computed, by outcome.

shardcoord_repair_jobs_total{kind}:
  - Counter. Repair jobs emitted, by kind (moveShard, cleanOutServer, ...).

Current-watcher metrics:

shardcoord_collection_build_duration_seconds:
  - Histogram. Time from AddCollectionToPlan until every shard reports.

shardcoord_collection_build_failures_total:
  - Counter. Collections whose shards reported an error while building.

Cluster-info and query-engine metrics:

shardcoord_clusterinfo_lookups_total{method, outcome}:
  - Counter. Cluster-info facade lookups, by method and outcome.

shardcoord_engine_setup_duration_seconds:
  - Histogram. Time to fan out and set up per-DB-server query engines.

shardcoord_engine_setup_failures_total:
  - Counter. Engine setup fan-outs that failed and were cleaned up.

Reboot-tracker metrics:

shardcoord_reboot_callbacks_fired_total:
  - Counter. Reboot-tracker callbacks fired.

shardcoord_reboot_pending_callbacks:
  - Gauge. Reboot-tracker callbacks currently armed.

# Usage

	timer := metrics.NewTimer()
	action := supervision.Check(state, ids)
	timer.ObserveDuration(metrics.ReconciliationDuration)
	metrics.SupervisionActionsTotal.WithLabelValues(actionName(action)).Inc()

	http.Handle("/metrics", metrics.Handler())
	http.HandleFunc("/health", metrics.HealthHandler())
	http.HandleFunc("/ready", metrics.ReadyHandler())
*/
package metrics
