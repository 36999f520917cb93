package plans

import "github.com/casebridge/dispatch-migrate/internal/migration"

// Lookup names used by the transforms.
const (
	LookupProfiles = "profiles"
	LookupDoctors  = "doctors"
	LookupPatients = "patients"
	LookupOrders   = "orders"
)

func legacyLookup(name, table, legacyColumn string) migration.LookupSpec {
	return migration.LookupSpec{Name: name, Table: table, LegacyColumn: legacyColumn, KeyColumn: "id"}
}

var (
	profilesLookup = legacyLookup(LookupProfiles, "profiles", "legacy_user_id")
	doctorsLookup  = legacyLookup(LookupDoctors, "doctors", "legacy_id")
	patientsLookup = legacyLookup(LookupPatients, "patients", "legacy_id")
	ordersLookup   = legacyLookup(LookupOrders, "orders", "legacy_id")
)

// target builds the target spec shared by every plan: the legacy id column is the
// conflict key.
func target(table, legacyColumn string) migration.TargetSpec {
	return migration.TargetSpec{
		Table:           table,
		ConflictColumns: []string{legacyColumn},
		LegacyIDColumn:  legacyColumn,
	}
}
