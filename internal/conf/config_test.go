package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casebridge/dispatch-migrate/internal/errors"
)

// resetViper isolates tests that go through the package-level viper instance.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadFromEnvironment(t *testing.T) {
	resetViper(t)
	t.Chdir(t.TempDir())

	t.Setenv("SOURCE_DB_HOST", "legacy.internal")
	t.Setenv("SOURCE_DB_NAME", "dispatch")
	t.Setenv("SOURCE_DB_USER", "reader")
	t.Setenv("TARGET_DB_HOST", "db.abcd.supabase.co")
	t.Setenv("TARGET_DB_NAME", "postgres")
	t.Setenv("TARGET_DB_SSLMODE", "require")
	t.Setenv("MIGRATE_BATCH_SIZE", "250")

	settings, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, settings.Source.Driver)
	assert.Equal(t, "legacy.internal", settings.Source.Host)
	assert.Equal(t, "reader", settings.Source.User)
	assert.Equal(t, 5432, settings.Source.EffectivePort())
	assert.Equal(t, "require", settings.Target.SSLMode)
	assert.Equal(t, 250, settings.Migrate.BatchSize)
	assert.InDelta(t, DefaultMinCoverage, settings.Migrate.MinCoverage, 0)
	assert.Equal(t, "info", settings.Logging.Level)
	assert.Same(t, settings, GetSettings())
}

func TestLoadReadsEnvFileWithoutOverriding(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, "migrate.env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"SOURCE_DB_DRIVER=sqlite\nSOURCE_DB_NAME=/tmp/legacy.db\nTARGET_DB_DRIVER=sqlite\nTARGET_DB_NAME=/tmp/file-target.db\n",
	), 0o600))

	// Pre-set variables win over the file.
	t.Setenv("TARGET_DB_NAME", "/tmp/env-target.db")
	// godotenv sets the rest into the process environment; restore them afterwards.
	t.Setenv("SOURCE_DB_DRIVER", "")
	t.Setenv("SOURCE_DB_NAME", "")
	t.Setenv("TARGET_DB_DRIVER", "")
	require.NoError(t, os.Unsetenv("SOURCE_DB_DRIVER"))
	require.NoError(t, os.Unsetenv("SOURCE_DB_NAME"))
	require.NoError(t, os.Unsetenv("TARGET_DB_DRIVER"))

	settings, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, settings.Source.Driver)
	assert.Equal(t, "/tmp/legacy.db", settings.Source.GetDSN())
	assert.Equal(t, "/tmp/env-target.db", settings.Target.Name)
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	resetViper(t)
	t.Chdir(t.TempDir())

	t.Setenv("SOURCE_DB_NAME", "dispatch")
	t.Setenv("TARGET_DB_NAME", "postgres")
	t.Setenv("MIGRATE_BATCH_SIZE", "20000")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MIGRATE_BATCH_SIZE")
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestLoadRequiresDatabaseNames(t *testing.T) {
	resetViper(t)
	t.Chdir(t.TempDir())

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source database: name is required")
	assert.Contains(t, err.Error(), "target database: name is required")
}

func TestLoadMissingEnvFile(t *testing.T) {
	resetViper(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}
