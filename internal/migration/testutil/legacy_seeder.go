package testutil

import (
	"database/sql"
	"fmt"
)

// LegacySeeder provides direct SQL-based seeding for the legacy dispatch tables.
// This bypasses GORM so seeding never goes through the code under test.
type LegacySeeder struct {
	db *sql.DB
}

// NewLegacySeeder creates a new seeder with the given SQL database connection.
func NewLegacySeeder(db *sql.DB) *LegacySeeder {
	return &LegacySeeder{db: db}
}

// batchSize defines the number of records to insert per transaction.
const batchSize = 500

// SeedData groups rows of every legacy table.
type SeedData struct {
	Users        []LegacyUser
	ContentTypes []LegacyContentType
	Doctors      []LegacyDoctor
	Patients     []LegacyPatient
	Orders       []LegacyOrder
	Comments     []LegacyComment
}

// SeedAll inserts every table of data in foreign key order.
func (s *LegacySeeder) SeedAll(data *SeedData) error {
	if err := s.SeedUsers(data.Users); err != nil {
		return fmt.Errorf("seed users: %w", err)
	}
	if err := s.SeedContentTypes(data.ContentTypes); err != nil {
		return fmt.Errorf("seed content types: %w", err)
	}
	if err := s.SeedDoctors(data.Doctors); err != nil {
		return fmt.Errorf("seed doctors: %w", err)
	}
	if err := s.SeedPatients(data.Patients); err != nil {
		return fmt.Errorf("seed patients: %w", err)
	}
	if err := s.SeedOrders(data.Orders); err != nil {
		return fmt.Errorf("seed orders: %w", err)
	}
	if err := s.SeedComments(data.Comments); err != nil {
		return fmt.Errorf("seed comments: %w", err)
	}
	return nil
}

// SeedUsers inserts rows into auth_user.
func (s *LegacySeeder) SeedUsers(users []LegacyUser) error {
	const insertSQL = `INSERT INTO auth_user
		(id, username, email, first_name, last_name, is_active, is_staff, date_joined)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	return seed(s.db, insertSQL, users, func(u *LegacyUser) []any {
		return []any{u.ID, u.Username, u.Email, u.FirstName, u.LastName, u.IsActive, u.IsStaff, u.DateJoined}
	})
}

// SeedContentTypes inserts rows into django_content_type.
func (s *LegacySeeder) SeedContentTypes(types []LegacyContentType) error {
	const insertSQL = `INSERT INTO django_content_type (id, app_label, model) VALUES (?, ?, ?)`
	return seed(s.db, insertSQL, types, func(ct *LegacyContentType) []any {
		return []any{ct.ID, ct.AppLabel, ct.Model}
	})
}

// SeedDoctors inserts rows into dispatch_doctor.
func (s *LegacySeeder) SeedDoctors(doctors []LegacyDoctor) error {
	const insertSQL = `INSERT INTO dispatch_doctor
		(id, user_id, specialty, license_number, phone, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	return seed(s.db, insertSQL, doctors, func(d *LegacyDoctor) []any {
		return []any{d.ID, d.UserID, d.Specialty, d.LicenseNumber, d.Phone, d.CreatedAt}
	})
}

// SeedPatients inserts rows into dispatch_patient.
func (s *LegacySeeder) SeedPatients(patients []LegacyPatient) error {
	const insertSQL = `INSERT INTO dispatch_patient
		(id, doctor_id, first_name, last_name, birth_date, email, phone, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	return seed(s.db, insertSQL, patients, func(p *LegacyPatient) []any {
		return []any{p.ID, p.DoctorID, p.FirstName, p.LastName, p.BirthDate, p.Email, p.Phone, p.CreatedAt}
	})
}

// SeedOrders inserts rows into dispatch_order.
func (s *LegacySeeder) SeedOrders(orders []LegacyOrder) error {
	const insertSQL = `INSERT INTO dispatch_order
		(id, patient_id, doctor_id, status, total, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	return seed(s.db, insertSQL, orders, func(o *LegacyOrder) []any {
		return []any{o.ID, o.PatientID, o.DoctorID, o.Status, o.Total, o.Notes, o.CreatedAt}
	})
}

// SeedComments inserts rows into dispatch_comment.
func (s *LegacySeeder) SeedComments(comments []LegacyComment) error {
	const insertSQL = `INSERT INTO dispatch_comment
		(id, user_id, content_type_id, object_id, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	return seed(s.db, insertSQL, comments, func(c *LegacyComment) []any {
		return []any{c.ID, c.UserID, c.ContentTypeID, c.ObjectID, c.Body, c.CreatedAt}
	})
}

// seed inserts rows in transactions of batchSize using one prepared statement per batch.
func seed[T any](db *sql.DB, insertSQL string, rows []T, args func(*T) []any) error {
	for i := 0; i < len(rows); i += batchSize {
		end := min(i+batchSize, len(rows))
		if err := seedBatch(db, insertSQL, rows[i:end], args); err != nil {
			return fmt.Errorf("batch %d: %w", i/batchSize, err)
		}
	}
	return nil
}

func seedBatch[T any](db *sql.DB, insertSQL string, rows []T, args func(*T) []any) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is a no-op if already committed

	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range rows {
		if _, err := stmt.Exec(args(&rows[i])...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	return tx.Commit()
}
