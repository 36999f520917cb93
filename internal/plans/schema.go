package plans

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/casebridge/dispatch-migrate/internal/errors"
)

// Schema is the target DDL for local and test targets. It sticks to types that
// SQLite, Postgres and MySQL all accept; production Supabase tables are managed by
// their own migrations.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		id VARCHAR(36) PRIMARY KEY,
		legacy_user_id BIGINT NOT NULL UNIQUE,
		email VARCHAR(254),
		first_name VARCHAR(150),
		last_name VARCHAR(150),
		role VARCHAR(20) NOT NULL,
		is_active BOOLEAN NOT NULL,
		created_at TIMESTAMP NOT NULL,
		metadata JSON
	)`,
	`CREATE TABLE IF NOT EXISTS doctors (
		id VARCHAR(36) PRIMARY KEY,
		legacy_id BIGINT NOT NULL UNIQUE,
		profile_id VARCHAR(36) NOT NULL,
		specialty VARCHAR(100),
		license_number VARCHAR(50),
		phone VARCHAR(30),
		created_at TIMESTAMP NOT NULL,
		metadata JSON
	)`,
	`CREATE TABLE IF NOT EXISTS patients (
		id VARCHAR(36) PRIMARY KEY,
		legacy_id BIGINT NOT NULL UNIQUE,
		doctor_id VARCHAR(36),
		first_name VARCHAR(100) NOT NULL,
		last_name VARCHAR(100),
		birth_date DATE,
		email VARCHAR(254),
		phone VARCHAR(30),
		created_at TIMESTAMP NOT NULL,
		metadata JSON
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(36) PRIMARY KEY,
		legacy_id BIGINT NOT NULL UNIQUE,
		patient_id VARCHAR(36) NOT NULL,
		doctor_id VARCHAR(36),
		status VARCHAR(20) NOT NULL,
		total NUMERIC(10,2),
		notes TEXT,
		created_at TIMESTAMP NOT NULL,
		metadata JSON
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id VARCHAR(36) PRIMARY KEY,
		legacy_id BIGINT NOT NULL UNIQUE,
		author_id VARCHAR(36) NOT NULL,
		parent_type VARCHAR(20) NOT NULL,
		order_id VARCHAR(36),
		patient_id VARCHAR(36),
		body TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		metadata JSON
	)`,
}

// CreateSchema applies Schema to db.
func CreateSchema(ctx context.Context, db *gorm.DB) error {
	for _, stmt := range Schema {
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return errors.New(fmt.Errorf("create target schema: %w", err)).
				Component("plans").
				Category(errors.CategoryDatabase).
				Build()
		}
	}
	return nil
}
