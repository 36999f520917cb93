package verify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casebridge/dispatch-migrate/internal/conf"
	"github.com/casebridge/dispatch-migrate/internal/migration"
	"github.com/casebridge/dispatch-migrate/internal/migration/testutil"
	"github.com/casebridge/dispatch-migrate/internal/plans"
	"github.com/casebridge/dispatch-migrate/internal/runtime"
)

type coverageRow struct {
	Plan    string  `json:"plan"`
	Source  int64   `json:"source_rows"`
	Target  int64   `json:"target_rows"`
	Remote  *int64  `json:"remote_rows"`
	Percent float64 `json:"coverage_percent"`
}

// setupVerify migrates profiles and doctors; patients are seeded but never migrated.
func setupVerify(t *testing.T) (*runtime.App, *bytes.Buffer) {
	t.Helper()
	tc := testutil.SetupTest(t)
	require.NoError(t, tc.Seeder.SeedAll(&testutil.SeedData{
		Users:        testutil.GenerateUsers(3),
		ContentTypes: testutil.DefaultContentTypes(),
		Doctors:      testutil.GenerateDoctors(2, 3),
		Patients:     testutil.GeneratePatients(2, 1),
	}))
	require.NoError(t, plans.CreateSchema(t.Context(), tc.Target.DB()))

	selected, err := plans.Select("profiles", "doctors")
	require.NoError(t, err)
	engine, err := migration.New(&migration.Config{Source: tc.Source, Target: tc.Target, Logger: tc.Logger})
	require.NoError(t, err)
	_, err = engine.RunAll(t.Context(), selected)
	require.NoError(t, err)

	app := runtime.New(&conf.Settings{
		Source:  conf.DatabaseSettings{Driver: conf.DriverSQLite, Name: filepath.Join(tc.TempDir, "legacy.db")},
		Target:  conf.DatabaseSettings{Driver: conf.DriverSQLite, Name: filepath.Join(tc.TempDir, "target.db")},
		Migrate: conf.MigrateSettings{MinCoverage: 100, Output: "json"},
	})
	out := &bytes.Buffer{}
	app.Out = out
	return app, out
}

func decodeCoverage(t *testing.T, out *bytes.Buffer) map[string]coverageRow {
	t.Helper()
	var rows []coverageRow
	require.NoError(t, json.Unmarshal(out.Bytes(), &rows), "output: %s", out.String())
	byPlan := make(map[string]coverageRow, len(rows))
	for _, r := range rows {
		byPlan[r.Plan] = r
	}
	return byPlan
}

func TestRunVerify_Coverage(t *testing.T) {
	t.Parallel()
	app, out := setupVerify(t)

	require.NoError(t, runVerify(t.Context(), app, []string{"profiles", "doctors", "patients"}, false, false))

	rows := decodeCoverage(t, out)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(3), rows["profiles"].Target)
	assert.Equal(t, int64(2), rows["doctors"].Source)
	assert.Equal(t, int64(2), rows["doctors"].Target)
	assert.Equal(t, int64(2), rows["patients"].Source)
	assert.Zero(t, rows["patients"].Target)
	assert.Zero(t, rows["patients"].Percent)
	assert.Nil(t, rows["profiles"].Remote)
}

func TestRunVerify_Strict(t *testing.T) {
	t.Parallel()
	app, _ := setupVerify(t)

	err := runVerify(t.Context(), app, []string{"patients"}, false, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 plans below")

	require.NoError(t, runVerify(t.Context(), app, []string{"profiles"}, false, true))
}

func TestRunVerify_Supabase(t *testing.T) {
	t.Parallel()
	app, out := setupVerify(t)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
		switch strings.TrimPrefix(r.URL.Path, "/rest/v1/") {
		case "profiles":
			w.Header().Set("Content-Range", "0-2/3")
		default:
			// doctors disagree with the database
			w.Header().Set("Content-Range", "*/1")
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	app.Settings.Supabase = conf.SupabaseSettings{URL: server.URL, ServiceKey: "service-key"}

	err := runVerify(t.Context(), app, []string{"profiles", "doctors"}, true, true)
	require.Error(t, err, "remote count mismatch must fail strict verification")

	rows := decodeCoverage(t, out)
	require.NotNil(t, rows["profiles"].Remote)
	assert.Equal(t, int64(3), *rows["profiles"].Remote)
	require.NotNil(t, rows["doctors"].Remote)
	assert.Equal(t, int64(1), *rows["doctors"].Remote)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunVerify_SupabaseNotConfigured(t *testing.T) {
	t.Parallel()
	app, _ := setupVerify(t)

	require.Error(t, runVerify(t.Context(), app, nil, true, false))
}
