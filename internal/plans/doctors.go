package plans

import (
	"strings"

	"github.com/casebridge/dispatch-migrate/internal/migration"
)

// Doctors migrates dispatch_doctor. Every doctor needs a migrated profile.
func Doctors() *migration.Plan {
	return &migration.Plan{
		Name:        "doctors",
		Description: "dispatch_doctor to doctors, linked to profiles",
		Source: migration.SourceSpec{
			Query:     `SELECT id, user_id, specialty, license_number, phone, created_at FROM dispatch_doctor`,
			KeyColumn: "id",
		},
		Lookups:   []migration.LookupSpec{profilesLookup},
		Target:    target("doctors", "legacy_id"),
		Transform: transformDoctor,
		DependsOn: []string{"profiles"},
	}
}

func transformDoctor(row migration.SourceRow, lookups *migration.Lookups) (migration.Record, error) {
	id := legacyID(row)
	userID, ok := row.Int64("user_id")
	if !ok {
		return nil, migration.Skip("doctor %d has no user", id)
	}
	profileID, err := lookups.Resolve(LookupProfiles, userID)
	if err != nil {
		return nil, err
	}
	created, err := createdAt(row, "doctor", "created_at")
	if err != nil {
		return nil, err
	}

	var license *string
	if v := row.TrimmedString("license_number"); v != nil {
		upper := strings.ToUpper(*v)
		license = &upper
	}

	return migration.Record{
		"id":             migration.StableID("doctors", id).String(),
		"legacy_id":      id,
		"profile_id":     profileID,
		"specialty":      row.TrimmedString("specialty"),
		"license_number": license,
		"phone":          row.TrimmedString("phone"),
		"created_at":     created,
		"metadata": migration.Metadata(map[string]any{
			"legacy_user_id": userID,
		}),
	}, nil
}
