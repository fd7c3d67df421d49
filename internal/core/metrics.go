package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records run activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	rows        *prometheus.CounterVec
	roots       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	activeRuns  prometheus.Gauge
	lastSuccess *prometheus.GaugeVec
}

// NewMetrics creates the run collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simplestruct",
			Name:      "runs_total",
			Help:      "Report runs by table and outcome.",
		}, []string{"table", "outcome"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simplestruct",
			Name:      "rows_inserted_total",
			Help:      "Flattened rows written to report tables.",
		}, []string{"table"}),
		roots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simplestruct",
			Name:      "roots_processed_total",
			Help:      "Root entities flattened.",
		}, []string{"table"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "simplestruct",
			Name:      "run_duration_seconds",
			Help:      "Wall time of report runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"table"}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "simplestruct",
			Name:      "active_runs",
			Help:      "Runs currently executing.",
		}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "simplestruct",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}, []string{"table"}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.rows, m.roots, m.duration, m.activeRuns, m.lastSuccess)
	}
	return m
}

func (m *Metrics) runStarted() {
	if m == nil {
		return
	}
	m.activeRuns.Inc()
}

func (m *Metrics) rootProcessed(table string) {
	if m == nil {
		return
	}
	m.roots.WithLabelValues(table).Inc()
}

func (m *Metrics) runFinished(table string, success bool, rows int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.activeRuns.Dec()
	outcome := "failure"
	if success {
		outcome = "success"
		m.lastSuccess.WithLabelValues(table).SetToCurrentTime()
	}
	m.runs.WithLabelValues(table, outcome).Inc()
	m.rows.WithLabelValues(table).Add(float64(rows))
	m.duration.WithLabelValues(table).Observe(elapsed.Seconds())
}
