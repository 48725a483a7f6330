// Package metrics provides Prometheus metrics for monitoring the CheckBell task tracker.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InstancesMaterialized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkbell_instances_materialized_total",
			Help: "Total number of task instances created from recurring templates",
		},
		[]string{"department", "forced"},
	)
	MaterializeRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkbell_materialize_runs_total",
			Help: "Total number of materialization runs by outcome",
		},
		[]string{"department", "outcome"},
	)
	TaskMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkbell_task_mutations_total",
			Help: "Total number of task and report mutations",
		},
		[]string{"operation", "collection"},
	)
	SideEffectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkbell_side_effect_failures_total",
			Help: "Total number of best-effort side effects that failed",
		},
		[]string{"kind"},
	)
	StorageDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkbell_storage_degraded_total",
			Help: "Total number of unreadable documents treated as empty",
		},
	)
	LockWaitTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "checkbell_lock_wait_seconds",
			Help:    "Time spent waiting for a document lock",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
	)
	OpenItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "checkbell_open_items",
			Help: "Current number of open items per department and collection",
		},
		[]string{"department", "collection"},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkbell_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkbell_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func RecordMaterialized(department string, created int, forced bool) {
	InstancesMaterialized.WithLabelValues(department, strconv.FormatBool(forced)).Add(float64(created))
	MaterializeRuns.WithLabelValues(department, "ok").Inc()
}

func RecordMaterializeFailed(department string) {
	MaterializeRuns.WithLabelValues(department, "error").Inc()
}

func RecordMutation(operation, collection string) {
	TaskMutations.WithLabelValues(operation, collection).Inc()
}

func RecordSideEffectFailure(kind string) {
	SideEffectFailures.WithLabelValues(kind).Inc()
}

func RecordStorageDegraded() {
	StorageDegraded.Inc()
}

func ObserveLockWait(wait time.Duration) {
	LockWaitTime.Observe(wait.Seconds())
}

func UpdateOpenItems(department, collection string, count int) {
	OpenItems.WithLabelValues(department, collection).Set(float64(count))
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
