// Package metrics provides Prometheus metrics for the ingestion engine.
// A nil or disabled *Metrics is safe to call.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scoracle_lake"

// Metrics holds all ingestion metrics.
type Metrics struct {
	// Counters
	TasksTotal    *prometheus.CounterVec
	RowsWritten   *prometheus.CounterVec
	RowsDropped   *prometheus.CounterVec
	FetchAttempts *prometheus.CounterVec
	Corrections   prometheus.Counter
	RunsTotal     *prometheus.CounterVec

	// Gauges
	TasksInFlight prometheus.Gauge
	LastRunTime   prometheus.Gauge

	// Histograms
	TaskDuration *prometheus.HistogramVec
	RunDuration  prometheus.Histogram

	registry *prometheus.Registry
	enabled  bool
}

// New creates a metrics instance with its own registry.
func New(enabled bool) *Metrics {
	m := &Metrics{
		enabled:  enabled,
		registry: prometheus.NewRegistry(),
	}
	if !enabled {
		return m
	}

	m.TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Tasks finished by entity and outcome",
		},
		[]string{"entity", "outcome"}, // "completed", "failed", "skipped"
	)

	m.RowsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows written to partitions by entity",
		},
		[]string{"entity"},
	)

	m.RowsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Rows rejected by validation by entity",
		},
		[]string{"entity"},
	)

	m.FetchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Upstream requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"}, // "ok", "transient", "permanent"
	)

	m.Corrections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_corrections_total",
			Help:      "Player stat dates reopened by trade detection",
		},
	)

	m.RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Ingestion runs by result",
		},
		[]string{"result"}, // "ok", "degraded", "failed"
	)

	m.TasksInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_in_flight",
			Help:      "Tasks currently holding a worker slot",
		},
	)

	m.LastRunTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		},
	)

	m.TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Time from fetch start to final ledger mark",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"entity"},
	)

	m.RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a whole ingestion run",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		},
	)

	m.registry.MustRegister(
		m.TasksTotal,
		m.RowsWritten,
		m.RowsDropped,
		m.FetchAttempts,
		m.Corrections,
		m.RunsTotal,
		m.TasksInFlight,
		m.LastRunTime,
		m.TaskDuration,
		m.RunDuration,
	)
	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// IsEnabled returns true if metrics are enabled.
func (m *Metrics) IsEnabled() bool {
	return m != nil && m.enabled
}

// RecordTask counts a finished task and its duration.
func (m *Metrics) RecordTask(entity, outcome string, d time.Duration) {
	if !m.IsEnabled() {
		return
	}
	m.TasksTotal.WithLabelValues(entity, outcome).Inc()
	if d > 0 {
		m.TaskDuration.WithLabelValues(entity).Observe(d.Seconds())
	}
}

// RecordRows counts rows written and dropped for an entity.
func (m *Metrics) RecordRows(entity string, written, dropped int) {
	if !m.IsEnabled() {
		return
	}
	m.RowsWritten.WithLabelValues(entity).Add(float64(written))
	m.RowsDropped.WithLabelValues(entity).Add(float64(dropped))
}

// RecordFetchAttempt counts one upstream request.
func (m *Metrics) RecordFetchAttempt(endpoint, outcome string) {
	if m.IsEnabled() {
		m.FetchAttempts.WithLabelValues(endpoint, outcome).Inc()
	}
}

// RecordCorrections counts reopened player stat dates.
func (m *Metrics) RecordCorrections(n int) {
	if m.IsEnabled() && n > 0 {
		m.Corrections.Add(float64(n))
	}
}

// TaskStarted and TaskDone track worker slot usage.
func (m *Metrics) TaskStarted() {
	if m.IsEnabled() {
		m.TasksInFlight.Inc()
	}
}

func (m *Metrics) TaskDone() {
	if m.IsEnabled() {
		m.TasksInFlight.Dec()
	}
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(result string, d time.Duration) {
	if !m.IsEnabled() {
		return
	}
	m.RunsTotal.WithLabelValues(result).Inc()
	m.RunDuration.Observe(d.Seconds())
	m.LastRunTime.SetToCurrentTime()
}
