// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Default values shared by flags and viper.
const (
	DefaultBatchSize   = 500
	MinBatchSize       = 1
	MaxBatchSize       = 10000
	DefaultMinCoverage = 90.0
	DefaultSSLMode     = "disable"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	for _, side := range []string{"source", "target"} {
		viper.SetDefault(side+".driver", DriverPostgres)
		viper.SetDefault(side+".host", "localhost")
		viper.SetDefault(side+".port", 0) // resolved per driver by DatabaseSettings.EffectivePort
		viper.SetDefault(side+".user", "")
		viper.SetDefault(side+".password", "")
		viper.SetDefault(side+".name", "")
		viper.SetDefault(side+".sslmode", DefaultSSLMode)
		viper.SetDefault(side+".dsn", "")
	}

	viper.SetDefault("supabase.url", "")
	viper.SetDefault("supabase.servicekey", "")

	viper.SetDefault("migrate.batchsize", DefaultBatchSize)
	viper.SetDefault("migrate.mincoverage", DefaultMinCoverage)
	viper.SetDefault("migrate.batchespersecond", 0)
	viper.SetDefault("migrate.output", "text")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")

	viper.SetDefault("sentry.dsn", "")
}
