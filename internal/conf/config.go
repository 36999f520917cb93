// Package conf loads dispatch-migrate settings from the environment, optional .env files
// and command-line flags.
package conf

import (
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/casebridge/dispatch-migrate/internal/errors"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Settings is the full runtime configuration.
type Settings struct {
	Source   DatabaseSettings // legacy Django store, read-only
	Target   DatabaseSettings // normalized store, read/write
	Supabase SupabaseSettings // REST endpoint in front of the target
	Migrate  MigrateSettings  // engine tuning
	Logging  LogSettings
	Sentry   SentrySettings
}

// DatabaseSettings describes one SQL store. DSN, when set, wins over the components.
// For sqlite, Name is the database file path.
type DatabaseSettings struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	DSN      string
}

// SupabaseSettings holds the PostgREST endpoint and the service-role key.
type SupabaseSettings struct {
	URL        string
	ServiceKey string
}

// Enabled reports whether both the endpoint and the key are configured.
func (s SupabaseSettings) Enabled() bool {
	return s.URL != "" && s.ServiceKey != ""
}

// MigrateSettings controls engine behaviour. Only BatchSize and MinCoverage have
// environment bindings; the rest are set from command-line flags.
type MigrateSettings struct {
	BatchSize        int
	MinCoverage      float64 // percent; coverage below this is flagged
	BatchesPerSecond float64 // 0 disables throttling
	DryRun           bool
	Resume           bool
	RecordIssues     bool
	RowFallback      bool
	Strict           bool // fail the command when coverage is below MinCoverage
	CreateTables     bool
	Output           string // text, json or yaml
	MetricsFile      string
}

// LogSettings selects the console level and an optional JSON log file.
type LogSettings struct {
	Level string
	File  string
}

// SentrySettings enables error reporting when DSN is set.
type SentrySettings struct {
	DSN string
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads .env files and the environment into a validated Settings value.
// With no envFiles, ".env" in the working directory is read when present.
// Variables already set in the process environment are never overridden by a file.
func Load(envFiles ...string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := loadEnvFiles(envFiles); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "load_env_files").
			Build()
	}

	if err := initViper(); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "bind_env").
			Build()
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "validate").
			Build()
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// GetSettings returns the settings from the last successful Load, or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env files %v: %w", files, err)
	}
	return nil
}

func initViper() error {
	setDefaultConfig()
	return configureEnvironmentVariables()
}

// SyncViper copies values that command-line flags may have changed back into settings.
// Flags are bound to viper keys, so viper holds the final precedence-resolved value.
func SyncViper(settings *Settings) {
	settings.Migrate.BatchSize = viper.GetInt("migrate.batchsize")
	settings.Migrate.MinCoverage = viper.GetFloat64("migrate.mincoverage")
	settings.Migrate.Output = viper.GetString("migrate.output")
	settings.Logging.Level = viper.GetString("logging.level")
	settings.Logging.File = viper.GetString("logging.file")
}
