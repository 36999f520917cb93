package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MigrationRecorder is the engine's view of the metrics layer.
type MigrationRecorder interface {
	// RecordRows adds n rows of a plan under one outcome label.
	RecordRows(plan, outcome string, n int)
	// RecordBatch records one written (or failed) batch and its duration.
	RecordBatch(plan, status string, duration time.Duration)
	// RecordBatchError counts a failed batch by driver error kind.
	RecordBatchError(plan, kind string)
	// RecordLookup records the size and build time of a lookup table.
	RecordLookup(lookup string, size int, duration time.Duration, cached bool)
	// RecordRun records the end of a plan run.
	RecordRun(plan, status string, duration time.Duration)
}

// MigrationMetrics contains Prometheus metrics for migration runs
type MigrationMetrics struct {
	registry *prometheus.Registry

	rowsTotal           *prometheus.CounterVec
	batchesTotal        *prometheus.CounterVec
	batchDuration       *prometheus.HistogramVec
	batchErrorsTotal    *prometheus.CounterVec
	lookupSize          *prometheus.GaugeVec
	lookupBuildDuration *prometheus.HistogramVec
	lookupCacheTotal    *prometheus.CounterVec
	runsTotal           *prometheus.CounterVec
	runDuration         *prometheus.GaugeVec
	lastRunTimestamp    *prometheus.GaugeVec

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewMigrationMetrics creates and registers new migration metrics
func NewMigrationMetrics(registry *prometheus.Registry) (*MigrationMetrics, error) {
	m := &MigrationMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MigrationMetrics) initMetrics() {
	m.rowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migration_rows_total",
			Help: "Source rows processed, by plan and outcome",
		},
		[]string{"plan", "outcome"}, // outcome: inserted, existing, skipped, errored, planned
	)

	m.batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migration_batches_total",
			Help: "Batches written to the target, by plan and status",
		},
		[]string{"plan", "status"},
	)

	m.batchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "migration_batch_duration_seconds",
			Help:    "Time taken to read, transform and write one batch",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount14),
		},
		[]string{"plan"},
	)

	m.batchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migration_batch_errors_total",
			Help: "Failed batch writes, by plan and driver error kind",
		},
		[]string{"plan", "kind"},
	)

	m.lookupSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "migration_lookup_entries",
			Help: "Entries in a legacy-id lookup table",
		},
		[]string{"lookup"},
	)

	m.lookupBuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "migration_lookup_build_duration_seconds",
			Help:    "Time taken to load a lookup table from the target",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount14),
		},
		[]string{"lookup"},
	)

	m.lookupCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migration_lookup_cache_total",
			Help: "Lookup table requests served from cache or built",
		},
		[]string{"result"}, // hit, miss
	)

	m.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migration_runs_total",
			Help: "Completed plan runs, by plan and status",
		},
		[]string{"plan", "status"},
	)

	m.runDuration = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "migration_run_duration_seconds",
			Help: "Duration of the last run of a plan",
		},
		[]string{"plan"},
	)

	m.lastRunTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "migration_last_run_timestamp_seconds",
			Help: "Unix time the last run of a plan finished",
		},
		[]string{"plan", "status"},
	)

	m.collectors = []prometheus.Collector{
		m.rowsTotal,
		m.batchesTotal,
		m.batchDuration,
		m.batchErrorsTotal,
		m.lookupSize,
		m.lookupBuildDuration,
		m.lookupCacheTotal,
		m.runsTotal,
		m.runDuration,
		m.lastRunTimestamp,
	}
}

// Describe implements the Collector interface
func (m *MigrationMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *MigrationMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordRows adds n rows of a plan under one outcome label.
func (m *MigrationMetrics) RecordRows(plan, outcome string, n int) {
	if n <= 0 {
		return
	}
	m.rowsTotal.WithLabelValues(plan, outcome).Add(float64(n))
}

// RecordBatch records one batch and its duration.
func (m *MigrationMetrics) RecordBatch(plan, status string, duration time.Duration) {
	m.batchesTotal.WithLabelValues(plan, status).Inc()
	m.batchDuration.WithLabelValues(plan).Observe(duration.Seconds())
}

// RecordBatchError counts a failed batch by driver error kind.
func (m *MigrationMetrics) RecordBatchError(plan, kind string) {
	m.batchErrorsTotal.WithLabelValues(plan, kind).Inc()
}

// RecordLookup records the size of a lookup table. Build duration is only observed for
// tables loaded from the target, not for cache hits.
func (m *MigrationMetrics) RecordLookup(lookup string, size int, duration time.Duration, cached bool) {
	m.lookupSize.WithLabelValues(lookup).Set(float64(size))
	if cached {
		m.lookupCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	m.lookupCacheTotal.WithLabelValues("miss").Inc()
	m.lookupBuildDuration.WithLabelValues(lookup).Observe(duration.Seconds())
}

// RecordRun records the end of a plan run.
func (m *MigrationMetrics) RecordRun(plan, status string, duration time.Duration) {
	m.runsTotal.WithLabelValues(plan, status).Inc()
	m.runDuration.WithLabelValues(plan).Set(duration.Seconds())
	m.lastRunTimestamp.WithLabelValues(plan, status).SetToCurrentTime()
}

// WriteTextfile writes the registry in Prometheus text format, for the node_exporter
// textfile collector. The file is replaced atomically.
func (m *MigrationMetrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}

// NoopRecorder discards all measurements.
type NoopRecorder struct{}

func (NoopRecorder) RecordRows(string, string, int)                {}
func (NoopRecorder) RecordBatch(string, string, time.Duration)     {}
func (NoopRecorder) RecordBatchError(string, string)               {}
func (NoopRecorder) RecordLookup(string, int, time.Duration, bool) {}
func (NoopRecorder) RecordRun(string, string, time.Duration)       {}

var (
	_ MigrationRecorder = (*MigrationMetrics)(nil)
	_ MigrationRecorder = NoopRecorder{}
)
