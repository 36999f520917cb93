// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	bindings := make([]envBinding, 0, 24)
	bindings = append(bindings, databaseBindings("source", "SOURCE_DB")...)
	bindings = append(bindings, databaseBindings("target", "TARGET_DB")...)

	return append(bindings,
		// Supabase REST endpoint
		envBinding{"supabase.url", "SUPABASE_URL", validateEnvURL},
		envBinding{"supabase.servicekey", "SUPABASE_SERVICE_ROLE_KEY", nil},

		// Engine
		envBinding{"migrate.batchsize", "MIGRATE_BATCH_SIZE", validateEnvBatchSize},
		envBinding{"migrate.mincoverage", "MIGRATE_MIN_COVERAGE", validateEnvCoverage},

		// Logging and telemetry
		envBinding{"logging.level", "MIGRATE_LOG_LEVEL", validateEnvLogLevel},
		envBinding{"logging.file", "MIGRATE_LOG_FILE", nil},
		envBinding{"sentry.dsn", "SENTRY_DSN", validateEnvURL},
	)
}

// databaseBindings returns the bindings of one store, e.g. source.host <- SOURCE_DB_HOST.
func databaseBindings(key, envPrefix string) []envBinding {
	return []envBinding{
		{key + ".driver", envPrefix + "_DRIVER", validateEnvDriver},
		{key + ".host", envPrefix + "_HOST", nil},
		{key + ".port", envPrefix + "_PORT", validateEnvPort},
		{key + ".user", envPrefix + "_USER", nil},
		{key + ".password", envPrefix + "_PASSWORD", nil},
		{key + ".name", envPrefix + "_NAME", nil},
		{key + ".sslmode", envPrefix + "_SSLMODE", validateEnvSSLMode},
		{key + ".dsn", envPrefix + "_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	bindings := getEnvBindings()
	var warnings []string

	for _, binding := range bindings {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value: %v", binding.EnvVar, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

// Environment variable validation functions

func validateEnvDriver(value string) error {
	if !slices.Contains(supportedDrivers, strings.TrimSpace(value)) {
		return fmt.Errorf("must be one of: %s", strings.Join(supportedDrivers, ", "))
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

var validSSLModes = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}

func validateEnvSSLMode(value string) error {
	if !slices.Contains(validSSLModes, strings.TrimSpace(value)) {
		return fmt.Errorf("must be one of: %s", strings.Join(validSSLModes, ", "))
	}
	return nil
}

func validateEnvBatchSize(value string) error {
	size, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid batch size: %w", err)
	}
	return validateBatchSize(size)
}

func validateEnvCoverage(value string) error {
	coverage, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fmt.Errorf("invalid coverage: %w", err)
	}
	return validateCoverage(coverage)
}

var validLogLevels = []string{"trace", "debug", "info", "warn", "error"}

func validateEnvLogLevel(value string) error {
	if !slices.Contains(validLogLevels, strings.ToLower(strings.TrimSpace(value))) {
		return fmt.Errorf("must be one of: %s", strings.Join(validLogLevels, ", "))
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host")
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return bindEnvVars()
}
