//go:build integration

package plans_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/casebridge/dispatch-migrate/internal/conf"
	"github.com/casebridge/dispatch-migrate/internal/datastore"
	"github.com/casebridge/dispatch-migrate/internal/migration"
	"github.com/casebridge/dispatch-migrate/internal/migration/testutil"
	"github.com/casebridge/dispatch-migrate/internal/plans"
)

const mysqlImage = "mysql:8.0.36"

// startMySQLTarget runs a throwaway MySQL server and opens it as the target store.
func startMySQLTarget(t *testing.T) *datastore.Store {
	t.Helper()
	ctx := t.Context()

	container, err := tcmysql.Run(ctx, mysqlImage,
		tcmysql.WithDatabase("dispatch"),
		tcmysql.WithUsername("migrate"),
		tcmysql.WithPassword("migrate"),
	)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate mysql container: %v", err)
		}
	})
	require.NoError(t, err, "failed to start mysql container")

	dsn, err := container.ConnectionString(ctx, "parseTime=true", "charset=utf8mb4")
	require.NoError(t, err)

	store, err := datastore.Open(ctx, "target", &conf.DatabaseSettings{Driver: conf.DriverMySQL, DSN: dsn}, nil)
	require.NoError(t, err, "failed to open mysql target")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRegistry_MySQLTarget(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	tc := testutil.SetupTest(t)
	seedDispatch(t, tc)
	target := startMySQLTarget(t)
	ctx := t.Context()

	require.NoError(t, plans.CreateSchema(ctx, target.DB()))
	state := datastore.NewStateManager(target.DB())
	require.NoError(t, state.EnsureSchema(ctx))

	newEngine := func() *migration.Engine {
		engine, err := migration.New(&migration.Config{
			Source:      tc.Source,
			Target:      target,
			Logger:      tc.Logger,
			Cache:       migration.NewLookupCache(time.Minute),
			Checkpoints: state,
			Issues:      state,
			Options:     migration.Options{BatchSize: 2, RecordIssues: true},
		})
		require.NoError(t, err)
		return engine
	}

	reports, err := newEngine().RunAll(ctx, plans.Registry())
	require.NoError(t, err)
	byPlan := reportsByPlan(reports)
	assert.Equal(t, int64(5), byPlan["profiles"].Inserted)
	assert.Equal(t, int64(2), byPlan["patients"].Inserted)
	assert.Equal(t, int64(1), byPlan["patients"].Errored)
	assert.Equal(t, int64(3), byPlan["orders"].Inserted)
	assert.Equal(t, int64(2), byPlan["comments"].Inserted)

	// ON DUPLICATE KEY UPDATE must not report existing rows as inserted
	reports, err = newEngine().RunAll(ctx, plans.Registry())
	require.NoError(t, err)
	for _, r := range reports {
		assert.Zero(t, r.Inserted, "%s inserted on rerun", r.Plan)
		assert.True(t, r.Balanced(), "%s unbalanced", r.Plan)
	}

	var profiles int64
	require.NoError(t, target.DB().Table("profiles").Count(&profiles).Error)
	assert.Equal(t, int64(5), profiles)

	counts, err := state.IssueSummary(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, counts)
}
