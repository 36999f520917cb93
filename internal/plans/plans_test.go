package plans_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casebridge/dispatch-migrate/internal/errors"
	"github.com/casebridge/dispatch-migrate/internal/migration"
	"github.com/casebridge/dispatch-migrate/internal/migration/testutil"
	"github.com/casebridge/dispatch-migrate/internal/plans"
)

var created = time.Date(2020, 5, 1, 8, 0, 0, 0, time.UTC)

// seedDispatch loads a small legacy dataset that exercises every classification:
//
//	users     1 staff, 2-3 doctors, 4 plain, 5 inactive
//	doctors   1 (user 2), 2 (user 3), 3 (missing user 99)
//	patients  1 (doctor 1), 2 (no doctor), 3 (skipped doctor 3), 4 (blank first name)
//	orders    1 new, 2 shipped, 3 unknown status, 4 (skipped patient 3)
//	comments  order, patient, doctor model, unknown content type, skipped order, empty body
func seedDispatch(t *testing.T, tc *testutil.TestContext) {
	t.Helper()

	users := []testutil.LegacyUser{
		testutil.NewUserBuilder().WithID(1).AsStaff().Build(),
		testutil.NewUserBuilder().WithID(2).WithEmail("  Dr.House@Example.COM ").Build(),
		testutil.NewUserBuilder().WithID(3).Build(),
		testutil.NewUserBuilder().WithID(4).WithEmail("").Build(),
		testutil.NewUserBuilder().WithID(5).Inactive().Build(),
	}

	doctors := testutil.GenerateDoctors(2, 3, 99)

	blank := testutil.NewPatientBuilder().WithID(4).WithDoctor(2).Build()
	blank.FirstName = "  "
	patients := []testutil.LegacyPatient{
		testutil.NewPatientBuilder().WithID(1).WithDoctor(1).WithEmail("Alex@Example.com").Build(),
		testutil.NewPatientBuilder().WithID(2).Build(),
		testutil.NewPatientBuilder().WithID(3).WithDoctor(3).Build(),
		blank,
	}

	orders := []testutil.LegacyOrder{
		testutil.NewOrderBuilder().WithID(1).WithPatient(1).WithDoctor(1).WithStatus("new").Build(),
		testutil.NewOrderBuilder().WithID(2).WithPatient(2).WithStatus("shipped").WithNotes("  fragile ").Build(),
		testutil.NewOrderBuilder().WithID(3).WithPatient(2).WithStatus("on_hold").Build(),
		testutil.NewOrderBuilder().WithID(4).WithPatient(3).Build(),
	}

	comments := []testutil.LegacyComment{
		{ID: 1, UserID: 1, ContentTypeID: testutil.ContentTypeOrder, ObjectID: 1, Body: "scan received", CreatedAt: created},
		{ID: 2, UserID: 4, ContentTypeID: testutil.ContentTypePatient, ObjectID: 2, Body: "called patient", CreatedAt: created},
		{ID: 3, UserID: 2, ContentTypeID: testutil.ContentTypeDoctor, ObjectID: 1, Body: "on leave", CreatedAt: created},
		{ID: 4, UserID: 2, ContentTypeID: 99, ObjectID: 1, Body: "orphan", CreatedAt: created},
		{ID: 5, UserID: 1, ContentTypeID: testutil.ContentTypeOrder, ObjectID: 4, Body: "late", CreatedAt: created},
		{ID: 6, UserID: 4, ContentTypeID: testutil.ContentTypePatient, ObjectID: 1, Body: "   ", CreatedAt: created},
	}

	require.NoError(t, tc.Seeder.SeedAll(&testutil.SeedData{
		Users:        users,
		ContentTypes: testutil.DefaultContentTypes(),
		Doctors:      doctors,
		Patients:     patients,
		Orders:       orders,
		Comments:     comments,
	}))
}

func setupPlansTest(t *testing.T) (*testutil.TestContext, *migration.Engine) {
	t.Helper()
	tc := testutil.SetupTest(t)
	require.NoError(t, plans.CreateSchema(t.Context(), tc.Target.DB()))
	seedDispatch(t, tc)

	engine, err := migration.New(&migration.Config{
		Source:      tc.Source,
		Target:      tc.Target,
		Logger:      tc.Logger,
		Cache:       migration.NewLookupCache(migration.DefaultLookupTTL),
		Checkpoints: tc.StateManager,
		Issues:      tc.StateManager,
		Options:     migration.Options{BatchSize: 2, RecordIssues: true},
	})
	require.NoError(t, err)
	return tc, engine
}

func reportsByPlan(reports []*migration.Report) map[string]*migration.Report {
	byPlan := make(map[string]*migration.Report, len(reports))
	for _, r := range reports {
		byPlan[r.Plan] = r
	}
	return byPlan
}

func text(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(s)
	case *any:
		if s == nil {
			return ""
		}
		return text(*s)
	default:
		return fmt.Sprint(s)
	}
}

func TestRegistry_RunAll(t *testing.T) {
	t.Parallel()
	tc, engine := setupPlansTest(t)

	reports, err := engine.RunAll(t.Context(), plans.Registry())
	require.NoError(t, err)
	require.Len(t, reports, 5)
	byPlan := reportsByPlan(reports)

	tests := []struct {
		plan                                  string
		processed, inserted, skipped, errored int64
	}{
		{"profiles", 5, 5, 0, 0},
		{"doctors", 3, 2, 1, 0},
		{"patients", 4, 2, 1, 1},
		{"orders", 4, 3, 1, 0},
		{"comments", 6, 2, 4, 0},
	}
	for _, tt := range tests {
		r := byPlan[tt.plan]
		require.NotNil(t, r, tt.plan)
		assert.Equal(t, tt.processed, r.Processed, "%s processed", tt.plan)
		assert.Equal(t, tt.inserted, r.Inserted, "%s inserted", tt.plan)
		assert.Equal(t, tt.skipped, r.Skipped, "%s skipped", tt.plan)
		assert.Equal(t, tt.errored, r.Errored, "%s errored", tt.plan)
		assert.True(t, r.Balanced(), "%s unbalanced", tt.plan)
	}

	assert.Equal(t, int64(5), tc.CountTarget(t, "profiles"))
	assert.Equal(t, int64(2), tc.CountTarget(t, "doctors"))
	assert.Equal(t, int64(2), tc.CountTarget(t, "patients"))
	assert.Equal(t, int64(3), tc.CountTarget(t, "orders"))
	assert.Equal(t, int64(2), tc.CountTarget(t, "comments"))
}

func TestRegistry_RerunIsNoOp(t *testing.T) {
	t.Parallel()
	_, engine := setupPlansTest(t)

	first, err := engine.RunAll(t.Context(), plans.Registry())
	require.NoError(t, err)
	second, err := engine.RunAll(t.Context(), plans.Registry())
	require.NoError(t, err)

	firstByPlan := reportsByPlan(first)
	for _, r := range second {
		assert.Zero(t, r.Inserted, "%s inserted on rerun", r.Plan)
		assert.Equal(t, firstByPlan[r.Plan].Inserted, r.Existing, "%s existing", r.Plan)
		assert.Equal(t, firstByPlan[r.Plan].Skipped, r.Skipped, "%s skipped", r.Plan)
		assert.True(t, r.Balanced(), "%s unbalanced", r.Plan)
	}
}

func TestProfiles_RolesAndEmail(t *testing.T) {
	t.Parallel()
	tc, engine := setupPlansTest(t)

	_, err := engine.Run(t.Context(), plans.Profiles())
	require.NoError(t, err)

	rows := tc.TargetRows(t, "profiles", "legacy_user_id")
	require.Len(t, rows, 5)

	roles := make([]string, len(rows))
	for i, row := range rows {
		roles[i] = text(row["role"])
	}
	assert.Equal(t, []string{plans.RoleAdmin, plans.RoleDoctor, plans.RoleDoctor, plans.RoleStaff, plans.RoleStaff}, roles)

	assert.Equal(t, "user1@example.com", text(rows[0]["email"]))
	assert.Equal(t, "dr.house@example.com", text(rows[1]["email"]))
	assert.Nil(t, rows[3]["email"], "blank e-mail becomes NULL")
	assert.Equal(t, migration.StableID("profiles", 1).String(), text(rows[0]["id"]))
	assert.Contains(t, text(rows[1]["metadata"]), `"username":"user2"`)
	assert.Contains(t, text(rows[1]["metadata"]), `"legacy_doctor_id":1`)
	assert.NotContains(t, text(rows[0]["metadata"]), "legacy_doctor_id")
}

func TestPatients_OptionalDoctorAndBlankName(t *testing.T) {
	t.Parallel()
	tc, engine := setupPlansTest(t)

	reports, err := engine.RunAll(t.Context(), []*migration.Plan{plans.Profiles(), plans.Doctors(), plans.Patients()})
	require.NoError(t, err)
	patients := reports[2]

	rows := tc.TargetRows(t, "patients", "legacy_id")
	require.Len(t, rows, 2)
	assert.Equal(t, migration.StableID("doctors", 1).String(), text(rows[0]["doctor_id"]))
	assert.Equal(t, "alex@example.com", text(rows[0]["email"]))
	assert.Nil(t, rows[1]["doctor_id"], "NULL doctor stays NULL")

	require.Len(t, patients.Skips, 1)
	assert.Equal(t, int64(3), patients.Skips[0].LegacyID)
	assert.Equal(t, plans.LookupDoctors, patients.Skips[0].Lookup)

	require.Len(t, patients.RowErrors, 1)
	assert.Equal(t, int64(4), patients.RowErrors[0].LegacyID)
	assert.Contains(t, patients.RowErrors[0].Message, "blank first name")
}

func TestOrders_StatusMapping(t *testing.T) {
	t.Parallel()
	tc, engine := setupPlansTest(t)

	_, err := engine.RunAll(t.Context(), plans.Registry()[:4])
	require.NoError(t, err)

	rows := tc.TargetRows(t, "orders", "legacy_id")
	require.Len(t, rows, 3)
	assert.Equal(t, plans.OrderPending, text(rows[0]["status"]))
	assert.Equal(t, plans.OrderShipped, text(rows[1]["status"]))
	assert.Equal(t, "fragile", text(rows[1]["notes"]))
	assert.Equal(t, plans.OrderPending, text(rows[2]["status"]))
	assert.Contains(t, text(rows[2]["metadata"]), `"legacy_status":"on_hold"`)
	assert.Contains(t, text(rows[2]["metadata"]), `"unmapped_status":true`)
	assert.NotContains(t, text(rows[0]["metadata"]), "unmapped_status")
	assert.Equal(t, migration.StableID("doctors", 1).String(), text(rows[0]["doctor_id"]))
	assert.Nil(t, rows[1]["doctor_id"])
}

func TestComments_PolymorphicParent(t *testing.T) {
	t.Parallel()
	tc, engine := setupPlansTest(t)

	reports, err := engine.RunAll(t.Context(), plans.Registry())
	require.NoError(t, err)
	comments := reportsByPlan(reports)["comments"]

	rows := tc.TargetRows(t, "comments", "legacy_id")
	require.Len(t, rows, 2)

	assert.Equal(t, plans.ParentOrder, text(rows[0]["parent_type"]))
	assert.Equal(t, migration.StableID("orders", 1).String(), text(rows[0]["order_id"]))
	assert.Nil(t, rows[0]["patient_id"])
	assert.Equal(t, migration.StableID("profiles", 1).String(), text(rows[0]["author_id"]))

	assert.Equal(t, plans.ParentPatient, text(rows[1]["parent_type"]))
	assert.Equal(t, migration.StableID("patients", 2).String(), text(rows[1]["patient_id"]))
	assert.Nil(t, rows[1]["order_id"])

	reasons := make(map[int64]string, len(comments.Skips))
	for _, s := range comments.Skips {
		reasons[s.LegacyID] = s.Reason
	}
	assert.Contains(t, reasons[3], "unsupported model doctor")
	assert.Contains(t, reasons[4], "unknown content type 99")
	assert.Contains(t, reasons[5], "legacy id 4 not found in orders lookup")
	assert.Contains(t, reasons[6], "empty body")
}

func TestRegistry_DependencyOrder(t *testing.T) {
	registry := plans.Registry()
	seenTables := map[string]bool{}
	seenPlans := map[string]bool{}
	for _, p := range registry {
		require.NoError(t, p.Validate(), p.Name)
		for _, dep := range p.DependsOn {
			assert.True(t, seenPlans[dep], "%s depends on %s, which runs later", p.Name, dep)
		}
		for _, table := range p.LookupTables() {
			assert.True(t, seenTables[table], "%s reads %s before it is migrated", p.Name, table)
		}
		seenPlans[p.Name] = true
		seenTables[p.Target.Table] = true
	}
}

func TestSelect(t *testing.T) {
	all, err := plans.Select()
	require.NoError(t, err)
	assert.Len(t, all, 5)

	subset, err := plans.Select("orders", "profiles")
	require.NoError(t, err)
	require.Len(t, subset, 2)
	assert.Equal(t, "profiles", subset[0].Name)
	assert.Equal(t, "orders", subset[1].Name)

	_, err = plans.Select("orders", "invoices")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Contains(t, err.Error(), "invoices")

	assert.Equal(t, []string{"profiles", "doctors", "patients", "orders", "comments"}, plans.Names())
}

func TestMapOrderStatus(t *testing.T) {
	tests := []struct {
		legacy string
		want   string
		known  bool
	}{
		{"new", plans.OrderPending, true},
		{" In_Progress ", plans.OrderInProgress, true},
		{"processing", plans.OrderInProgress, true},
		{"shipped", plans.OrderShipped, true},
		{"completed", plans.OrderDelivered, true},
		{"canceled", plans.OrderCancelled, true},
		{"on_hold", plans.OrderPending, false},
		{"", plans.OrderPending, false},
	}
	for _, tt := range tests {
		t.Run(tt.legacy, func(t *testing.T) {
			got, known := plans.MapOrderStatus(tt.legacy)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.known, known)
		})
	}
}

func TestCreateSchema_Idempotent(t *testing.T) {
	t.Parallel()
	tc := testutil.SetupTest(t)
	require.NoError(t, plans.CreateSchema(t.Context(), tc.Target.DB()))
	require.NoError(t, plans.CreateSchema(t.Context(), tc.Target.DB()))
	assert.Zero(t, tc.CountTarget(t, "comments"))
}
