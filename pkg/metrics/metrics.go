package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Agency / Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shardcoord_agency_is_leader",
			Help: "Whether this agency node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shardcoord_agency_peers_total",
			Help: "Total number of agency Raft peers",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shardcoord_agency_applied_index",
			Help: "Last applied agency Raft log index",
		},
	)

	AgencyApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shardcoord_agency_apply_duration_seconds",
			Help:    "Time taken to commit one agency write transaction",
			Buckets: prometheus.DefBuckets,
		},
	)

	AgencyPreconditionFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardcoord_agency_precondition_failures_total",
			Help: "Total number of agency transactions rejected by a failed precondition",
		},
	)

	// Collection-group supervision metrics
	CollectionGroupsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shardcoord_collection_groups_total",
			Help: "Total number of collection groups by database",
		},
		[]string{"database"},
	)

	SupervisionActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shardcoord_supervision_actions_total",
			Help: "Total number of supervision actions applied, by action kind",
		},
		[]string{"action"},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shardcoord_reconciliation_tick_duration_seconds",
			Help:    "Time taken for one reconciliation tick over every collection group",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardcoord_reconciliation_cycles_total",
			Help: "Total number of reconciliation ticks completed",
		},
	)

	ConvergedGroupsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shardcoord_converged_groups_total",
			Help: "Number of collection groups currently at NoActionRequired, by database",
		},
		[]string{"database"},
	)

	// Shard-repair metrics
	RepairPlansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shardcoord_repair_plans_total",
			Help: "Total number of shard-repair plans computed, by outcome",
		},
		[]string{"outcome"},
	)

	RepairJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shardcoord_repair_jobs_total",
			Help: "Total number of repair jobs emitted, by kind",
		},
		[]string{"kind"},
	)

	// Current-watcher metrics
	CollectionBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shardcoord_collection_build_duration_seconds",
			Help:    "Time from AddCollectionToPlan until every shard reports into Current",
			Buckets: prometheus.DefBuckets,
		},
	)

	CollectionBuildFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardcoord_collection_build_failures_total",
			Help: "Total number of collections whose shards reported an error while building",
		},
	)

	// Cluster-info facade metrics
	ClusterInfoLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shardcoord_clusterinfo_lookups_total",
			Help: "Total number of cluster-info facade lookups, by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	// Query-engine dispatch metrics
	EngineSetupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shardcoord_engine_setup_duration_seconds",
			Help:    "Time taken to fan out and set up per-DB-server query engines",
			Buckets: prometheus.DefBuckets,
		},
	)

	EngineSetupFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardcoord_engine_setup_failures_total",
			Help: "Total number of engine setup fan-outs that failed and were cleaned up",
		},
	)

	// Reboot-tracker metrics
	RebootCallbacksFiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shardcoord_reboot_callbacks_fired_total",
			Help: "Total number of reboot-tracker callbacks fired",
		},
	)

	RebootPendingCallbacks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shardcoord_reboot_pending_callbacks",
			Help: "Number of reboot-tracker callbacks currently armed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RaftLeader,
		RaftPeers,
		RaftAppliedIndex,
		AgencyApplyDuration,
		AgencyPreconditionFailuresTotal,
		CollectionGroupsTotal,
		SupervisionActionsTotal,
		ReconciliationDuration,
		ReconciliationCyclesTotal,
		ConvergedGroupsTotal,
		RepairPlansTotal,
		RepairJobsTotal,
		CollectionBuildDuration,
		CollectionBuildFailuresTotal,
		ClusterInfoLookupsTotal,
		EngineSetupDuration,
		EngineSetupFailuresTotal,
		RebootCallbacksFiredTotal,
		RebootPendingCallbacks,
	)
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed wall-clock time and reports it to a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a Timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram vector.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
