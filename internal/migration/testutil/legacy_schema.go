package testutil

// LegacySchema is the slice of the Django dispatch schema the plans read, in SQLite syntax.
var LegacySchema = []string{
	`CREATE TABLE auth_user (
		id INTEGER PRIMARY KEY,
		username VARCHAR(150) NOT NULL,
		email VARCHAR(254) NOT NULL DEFAULT '',
		first_name VARCHAR(150) NOT NULL DEFAULT '',
		last_name VARCHAR(150) NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT 1,
		is_staff BOOLEAN NOT NULL DEFAULT 0,
		date_joined DATETIME NOT NULL
	)`,
	`CREATE TABLE django_content_type (
		id INTEGER PRIMARY KEY,
		app_label VARCHAR(100) NOT NULL,
		model VARCHAR(100) NOT NULL
	)`,
	`CREATE TABLE dispatch_doctor (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES auth_user(id),
		specialty VARCHAR(100) NOT NULL DEFAULT '',
		license_number VARCHAR(50),
		phone VARCHAR(30),
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE dispatch_patient (
		id INTEGER PRIMARY KEY,
		doctor_id INTEGER REFERENCES dispatch_doctor(id),
		first_name VARCHAR(100) NOT NULL,
		last_name VARCHAR(100) NOT NULL,
		birth_date DATE,
		email VARCHAR(254),
		phone VARCHAR(30),
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE dispatch_order (
		id INTEGER PRIMARY KEY,
		patient_id INTEGER NOT NULL REFERENCES dispatch_patient(id),
		doctor_id INTEGER REFERENCES dispatch_doctor(id),
		status VARCHAR(20) NOT NULL,
		total DECIMAL(10,2),
		notes TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE dispatch_comment (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES auth_user(id),
		content_type_id INTEGER NOT NULL REFERENCES django_content_type(id),
		object_id INTEGER NOT NULL,
		body TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
}
