package plans

import (
	"github.com/casebridge/dispatch-migrate/internal/migration"
)

// Profile roles.
const (
	RoleAdmin  = "admin"
	RoleDoctor = "doctor"
	RoleStaff  = "staff"
)

// Profiles migrates auth_user into profiles. A user with a dispatch_doctor row is a
// doctor, otherwise staff users become admins.
func Profiles() *migration.Plan {
	return &migration.Plan{
		Name:        "profiles",
		Description: "auth_user accounts to profiles",
		Source: migration.SourceSpec{
			Query: `SELECT u.id, u.username, u.email, u.first_name, u.last_name,
				u.is_active, u.is_staff, u.date_joined,
				(SELECT MIN(d.id) FROM dispatch_doctor d WHERE d.user_id = u.id) AS doctor_id
				FROM auth_user u`,
			KeyColumn: "id",
		},
		Target:    target("profiles", "legacy_user_id"),
		Transform: transformProfile,
	}
}

func transformProfile(row migration.SourceRow, _ *migration.Lookups) (migration.Record, error) {
	joined, err := createdAt(row, "user", "date_joined")
	if err != nil {
		return nil, err
	}

	role := RoleStaff
	switch {
	case !row.IsNull("doctor_id"):
		role = RoleDoctor
	case row.Bool("is_staff"):
		role = RoleAdmin
	}

	id := legacyID(row)
	return migration.Record{
		"id":             migration.StableID("profiles", id).String(),
		"legacy_user_id": id,
		"email":          lowerEmail(row, "email"),
		"first_name":     row.TrimmedString("first_name"),
		"last_name":      row.TrimmedString("last_name"),
		"role":           role,
		"is_active":      row.Bool("is_active"),
		"created_at":     joined,
		"metadata": migration.Metadata(map[string]any{
			"username":         row.String("username"),
			"legacy_doctor_id": row.NullInt64("doctor_id"),
		}),
	}, nil
}
