// Package metrics registers the prometheus collectors exposed for the
// store-engine's internal concerns (SPEC_FULL.md DOMAIN STACK:
// prometheus/client_golang), grouped the way maddy's per-package
// metrics.go files each own one var block and register it in init
// (internal/target/queue/metrics.go, internal/msgpipeline/metrics.go).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// HandleCacheHits and HandleCacheMisses count lookups against the
	// db-handle cache (spec §9: "cache of open store handles").
	HandleCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exmdb",
			Subsystem: "handle_cache",
			Name:      "hits_total",
			Help:      "Number of store-handle lookups served from the cache",
		},
		[]string{"store"},
	)
	HandleCacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exmdb",
			Subsystem: "handle_cache",
			Name:      "misses_total",
			Help:      "Number of store-handle lookups that had to open a new handle",
		},
		[]string{"store"},
	)
	HandleCacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exmdb",
			Subsystem: "handle_cache",
			Name:      "evictions_total",
			Help:      "Number of store handles evicted by the idle-TTL sweep",
		},
		[]string{"store"},
	)
	OpenHandles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "exmdb",
			Subsystem: "handle_cache",
			Name:      "open_handles",
			Help:      "Number of store handles currently open",
		},
	)

	// ICSDownloadDuration observes the wall-clock time of a contents/
	// hierarchy ICS download pass (spec §4.5).
	ICSDownloadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "exmdb",
			Subsystem: "ics",
			Name:      "download_duration_seconds",
			Help:      "Duration of an ICS download pass",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"}, // "contents" | "hierarchy"
	)
	ICSUploadedChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exmdb",
			Subsystem: "ics",
			Name:      "uploaded_changes_total",
			Help:      "Number of state-changes applied by an ICS upload pass",
		},
		[]string{"kind"},
	)

	// RuleEvaluations and RuleActionsRun count rule-engine activity
	// (spec §4.7).
	RuleEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exmdb",
			Subsystem: "rules",
			Name:      "evaluations_total",
			Help:      "Number of rules whose condition was evaluated",
		},
		[]string{"matched"}, // "true" | "false"
	)
	RuleActionsRun = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exmdb",
			Subsystem: "rules",
			Name:      "actions_total",
			Help:      "Number of rule actions executed, by action kind",
		},
		[]string{"op"},
	)
	RuleDisabledByError = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "exmdb",
			Subsystem: "rules",
			Name:      "disabled_total",
			Help:      "Number of rules auto-disabled after an action error",
		},
		[]string{"provider"},
	)

	// ViewTableRebuildDuration observes the time taken to recompute a
	// live view-table's sort/category state after a notification (spec
	// §4.6).
	ViewTableRebuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "exmdb",
			Subsystem: "viewtable",
			Name:      "rebuild_duration_seconds",
			Help:      "Duration of a view-table state rebuild",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"table_type"}, // "contents" | "hierarchy"
	)
	ViewTableActiveTables = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "exmdb",
			Subsystem: "viewtable",
			Name:      "active_tables",
			Help:      "Number of live view-tables currently held open",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HandleCacheHits,
		HandleCacheMisses,
		HandleCacheEvictions,
		OpenHandles,
		ICSDownloadDuration,
		ICSUploadedChanges,
		RuleEvaluations,
		RuleActionsRun,
		RuleDisabledByError,
		ViewTableRebuildDuration,
		ViewTableActiveTables,
	)
}
