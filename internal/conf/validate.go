// conf/validate.go

package conf

import (
	"fmt"
	"slices"
	"strings"
)

var supportedDrivers = []string{DriverPostgres, DriverMySQL, DriverSQLite}

var validOutputs = []string{"text", "json", "yaml"}

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateDatabaseSettings("source", &settings.Source); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateDatabaseSettings("target", &settings.Target); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := ValidateMigrateSettings(&settings.Migrate); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if settings.Logging.Level != "" {
		if err := validateEnvLogLevel(settings.Logging.Level); err != nil {
			ve.Errors = append(ve.Errors, fmt.Sprintf("logging level: %v", err))
		}
	}

	if (settings.Supabase.URL == "") != (settings.Supabase.ServiceKey == "") {
		ve.Errors = append(ve.Errors, "supabase: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY must be set together")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateDatabaseSettings(side string, db *DatabaseSettings) error {
	if !slices.Contains(supportedDrivers, db.Driver) {
		return fmt.Errorf("%s database: unsupported driver %q (supported: %s)",
			side, db.Driver, strings.Join(supportedDrivers, ", "))
	}
	if db.DSN != "" {
		return nil
	}
	if db.Name == "" {
		return fmt.Errorf("%s database: name is required when no DSN is given", side)
	}
	if db.Driver == DriverSQLite {
		return nil
	}
	if db.Port < 0 || db.Port > 65535 {
		return fmt.Errorf("%s database: port must be between 1 and 65535, got %d", side, db.Port)
	}
	if db.Host == "" {
		return fmt.Errorf("%s database: host is required", side)
	}
	return nil
}

// ValidateMigrateSettings checks engine settings after flags have been applied.
func ValidateMigrateSettings(m *MigrateSettings) error {
	if err := validateBatchSize(m.BatchSize); err != nil {
		return err
	}
	if err := validateCoverage(m.MinCoverage); err != nil {
		return err
	}
	if m.BatchesPerSecond < 0 {
		return fmt.Errorf("batches per second must not be negative, got %g", m.BatchesPerSecond)
	}
	if m.Output != "" && !slices.Contains(validOutputs, m.Output) {
		return fmt.Errorf("output must be one of: %s", strings.Join(validOutputs, ", "))
	}
	return nil
}

func validateBatchSize(size int) error {
	if size < MinBatchSize {
		return fmt.Errorf("batch size must be at least %d", MinBatchSize)
	}
	if size > MaxBatchSize {
		return fmt.Errorf("batch size too large (max %d)", MaxBatchSize)
	}
	return nil
}

func validateCoverage(coverage float64) error {
	if coverage < 0 || coverage > 100 {
		return fmt.Errorf("coverage threshold must be between 0 and 100, got %g", coverage)
	}
	return nil
}
