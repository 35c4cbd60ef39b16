// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tenantdesk"

// Result label values.
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultRejected = "rejected"
	ResultNoop     = "noop"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests handled, by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration observes request latency by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// SaveCyclesTotal counts coordinator save requests by outcome.
	SaveCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settings_save_cycles_total",
			Help:      "Settings save requests, by result (success, failure, rejected, noop).",
		},
		[]string{"result"},
	)

	// PanelCommitsTotal counts individual panel commits.
	PanelCommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settings_panel_commits_total",
			Help:      "Panel commits, by panel key and result.",
		},
		[]string{"panel", "result"},
	)

	// AssetOperationsTotal counts profile asset uploads and removals.
	AssetOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_asset_operations_total",
			Help:      "Profile asset operations, by operation and result.",
		},
		[]string{"op", "result"},
	)

	// OpenSessions tracks open settings edit sessions.
	OpenSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "settings_open_sessions",
			Help:      "Settings edit sessions currently open.",
		},
	)
)

// Replace registers c with the default registry, first dropping a collector
// that exports the same metrics. Bootstrapping twice in one process relies
// on this.
func Replace(c prometheus.Collector) error {
	err := prometheus.Register(c)
	var dup prometheus.AlreadyRegisteredError
	if !errors.As(err, &dup) {
		return err
	}
	prometheus.Unregister(dup.ExistingCollector)
	return prometheus.Register(c)
}
