package plans

import (
	"fmt"

	"github.com/casebridge/dispatch-migrate/internal/migration"
)

// Patients migrates dispatch_patient. A patient without a doctor keeps a NULL doctor.
func Patients() *migration.Plan {
	return &migration.Plan{
		Name:        "patients",
		Description: "dispatch_patient to patients, linked to doctors",
		Source: migration.SourceSpec{
			Query: `SELECT id, doctor_id, first_name, last_name, birth_date, email, phone, created_at
				FROM dispatch_patient`,
			KeyColumn: "id",
		},
		Lookups:   []migration.LookupSpec{doctorsLookup},
		Target:    target("patients", "legacy_id"),
		Transform: transformPatient,
		DependsOn: []string{"doctors"},
	}
}

func transformPatient(row migration.SourceRow, lookups *migration.Lookups) (migration.Record, error) {
	id := legacyID(row)
	doctorID, err := lookups.ResolveOptional(LookupDoctors, row.NullInt64("doctor_id"))
	if err != nil {
		return nil, err
	}
	firstName := row.TrimmedString("first_name")
	if firstName == nil {
		return nil, fmt.Errorf("patient %d has a blank first name", id)
	}
	created, err := createdAt(row, "patient", "created_at")
	if err != nil {
		return nil, err
	}

	return migration.Record{
		"id":         migration.StableID("patients", id).String(),
		"legacy_id":  id,
		"doctor_id":  doctorID,
		"first_name": firstName,
		"last_name":  row.TrimmedString("last_name"),
		"birth_date": row.NullTime("birth_date"),
		"email":      lowerEmail(row, "email"),
		"phone":      row.TrimmedString("phone"),
		"created_at": created,
		"metadata": migration.Metadata(map[string]any{
			"legacy_doctor_id": row.NullInt64("doctor_id"),
		}),
	}, nil
}
