package testutil

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/casebridge/dispatch-migrate/internal/conf"
	"github.com/casebridge/dispatch-migrate/internal/datastore"
	"github.com/casebridge/dispatch-migrate/internal/logger"
)

// TestContext holds a source and a target store backed by temporary SQLite files.
type TestContext struct {
	TempDir string

	Source *datastore.Store
	Target *datastore.Store

	Seeder       *LegacySeeder
	StateManager *datastore.StateManager

	Logger logger.Logger
}

// SetupTest creates the stores, applies the legacy schema to the source and the
// bookkeeping schema to the target. Both stores are closed with t.Cleanup.
func SetupTest(t *testing.T) *TestContext {
	t.Helper()

	tmpDir := t.TempDir()
	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)

	tc := &TestContext{
		TempDir: tmpDir,
		Logger:  log,
		Source:  OpenSQLite(t, filepath.Join(tmpDir, "legacy.db"), log),
		Target:  OpenSQLite(t, filepath.Join(tmpDir, "target.db"), log),
	}

	tc.ExecSource(t, LegacySchema...)

	sqlDB, err := tc.Source.DB().DB()
	require.NoError(t, err, "failed to get sql.DB from source store")
	tc.Seeder = NewLegacySeeder(sqlDB)

	tc.StateManager = datastore.NewStateManager(tc.Target.DB())
	require.NoError(t, tc.StateManager.EnsureSchema(t.Context()), "failed to create bookkeeping tables")

	return tc
}

// OpenSQLite opens a store on a SQLite file and closes it when the test ends.
func OpenSQLite(t *testing.T, path string, log logger.Logger) *datastore.Store {
	t.Helper()

	store, err := datastore.Open(context.Background(), "test", &conf.DatabaseSettings{
		Driver: conf.DriverSQLite,
		Name:   path,
	}, log)
	require.NoError(t, err, "failed to open sqlite store %s", path)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// ExecSource runs statements against the source store.
func (tc *TestContext) ExecSource(t *testing.T, statements ...string) {
	t.Helper()
	execAll(t, tc.Source, statements)
}

// ExecTarget runs statements against the target store.
func (tc *TestContext) ExecTarget(t *testing.T, statements ...string) {
	t.Helper()
	execAll(t, tc.Target, statements)
}

// CountTarget returns the number of rows in a target table.
func (tc *TestContext) CountTarget(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, tc.Target.DB().Table(table).Count(&n).Error, "failed to count %s", table)
	return n
}

// TargetRows returns every row of a target table ordered by column orderBy.
func (tc *TestContext) TargetRows(t *testing.T, table, orderBy string) []map[string]any {
	t.Helper()
	var rows []map[string]any
	require.NoError(t, tc.Target.DB().Table(table).Order(orderBy).Find(&rows).Error, "failed to read %s", table)
	for _, row := range rows {
		for col, v := range row {
			row[col] = deref(v)
		}
	}
	return rows
}

// deref unwraps the *any gorm scans for columns without a declared type, such as JSON on SQLite.
func deref(v any) any {
	if p, ok := v.(*any); ok {
		if p == nil {
			return nil
		}
		return deref(*p)
	}
	return v
}

func execAll(t *testing.T, store *datastore.Store, statements []string) {
	t.Helper()
	for _, stmt := range statements {
		require.NoError(t, store.DB().Exec(stmt).Error, "statement failed: %s", stmt)
	}
}
