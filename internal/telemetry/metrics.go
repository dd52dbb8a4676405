package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects counters and gauges for compilation and deployment runs.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal        *prometheus.CounterVec // label: outcome
	RunDuration      prometheus.Histogram
	StanzasCompiled  *prometheus.CounterVec // label: type
	ResourcesSkipped *prometheus.CounterVec // label: reason
	DeployFileOps    *prometheus.CounterVec // label: op
	LastSuccessTime  prometheus.Gauge
	RunsSkippedBusy  prometheus.Counter
}

// NewMetrics creates a Metrics set backed by its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "naginator_runs_total",
			Help: "Completed runs by outcome (success, unchanged, error).",
		}, []string{"outcome"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "naginator_run_duration_seconds",
			Help:    "Wall-clock duration of one full run.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		StanzasCompiled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "naginator_stanzas_compiled_total",
			Help: "Stanzas compiled per entity type.",
		}, []string{"type"}),
		ResourcesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "naginator_resources_skipped_total",
			Help: "Resources dropped during compilation (duplicate, unknown_host).",
		}, []string{"reason"}),
		DeployFileOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "naginator_deploy_file_operations_total",
			Help: "Files copied or removed during deployment.",
		}, []string{"op"}),
		LastSuccessTime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "naginator_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}),
		RunsSkippedBusy: factory.NewCounter(prometheus.CounterOpts{
			Name: "naginator_runs_skipped_busy_total",
			Help: "Scheduled runs skipped because a run was already in progress.",
		}),
	}
}

// Handler returns an HTTP handler exposing the metrics in Prometheus
// text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
