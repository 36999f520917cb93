package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *MigrationMetrics {
	t.Helper()
	m, err := NewMigrationMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestRecordRows(t *testing.T) {
	t.Parallel()
	m := newTestMetrics(t)

	m.RecordRows("patients", OutcomeInserted, 480)
	m.RecordRows("patients", OutcomeInserted, 20)
	m.RecordRows("patients", OutcomeSkipped, 3)
	m.RecordRows("patients", OutcomeErrored, 0)

	assert.InDelta(t, 500, testutil.ToFloat64(m.rowsTotal.WithLabelValues("patients", OutcomeInserted)), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.rowsTotal.WithLabelValues("patients", OutcomeSkipped)), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.rowsTotal), "zero-row outcomes create no series")
}

func TestRecordBatch(t *testing.T) {
	t.Parallel()
	m := newTestMetrics(t)

	m.RecordBatch("orders", StatusSuccess, 120*time.Millisecond)
	m.RecordBatch("orders", StatusError, 40*time.Millisecond)
	m.RecordBatchError("orders", "constraint")

	assert.InDelta(t, 1, testutil.ToFloat64(m.batchesTotal.WithLabelValues("orders", StatusError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.batchErrorsTotal.WithLabelValues("orders", "constraint")), 0)

	metric := &dto.Metric{}
	observer, ok := m.batchDuration.WithLabelValues("orders").(prometheus.Histogram)
	require.True(t, ok)
	require.NoError(t, observer.Write(metric))
	assert.Equal(t, uint64(2), metric.GetHistogram().GetSampleCount())
	assert.InDelta(t, 0.16, metric.GetHistogram().GetSampleSum(), 1e-9)
}

func TestRecordLookupCache(t *testing.T) {
	t.Parallel()
	m := newTestMetrics(t)

	m.RecordLookup("doctors", 1200, 300*time.Millisecond, false)
	m.RecordLookup("doctors", 1200, 0, true)

	assert.InDelta(t, 1200, testutil.ToFloat64(m.lookupSize.WithLabelValues("doctors")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.lookupCacheTotal.WithLabelValues("hit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.lookupCacheTotal.WithLabelValues("miss")), 0)
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()
	m := newTestMetrics(t)

	m.RecordRun("doctors", StatusSuccess, 2*time.Second)
	m.RecordRows("doctors", OutcomeExisting, 10)

	path := filepath.Join(t.TempDir(), "textfile", "dispatch_migrate.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, `migration_runs_total{plan="doctors",status="success"} 1`)
	assert.Contains(t, content, `migration_rows_total{outcome="existing",plan="doctors"} 10`)
	assert.True(t, strings.Contains(content, "migration_run_duration_seconds"))
}

func TestDuplicateRegistrationFails(t *testing.T) {
	t.Parallel()
	registry := prometheus.NewRegistry()

	_, err := NewMigrationMetrics(registry)
	require.NoError(t, err)
	_, err = NewMigrationMetrics(registry)
	assert.Error(t, err)
}
