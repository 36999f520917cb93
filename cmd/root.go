package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/casebridge/dispatch-migrate/cmd/migrate"
	"github.com/casebridge/dispatch-migrate/cmd/planlist"
	"github.com/casebridge/dispatch-migrate/cmd/status"
	"github.com/casebridge/dispatch-migrate/cmd/verify"
	"github.com/casebridge/dispatch-migrate/cmd/version"
	"github.com/casebridge/dispatch-migrate/internal/conf"
	"github.com/casebridge/dispatch-migrate/internal/runtime"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	app := runtime.New(settings)

	rootCmd := &cobra.Command{
		Use:           "dispatch-migrate",
		Short:         "Migrate the legacy dispatch database into the normalized schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		panic(err)
	}

	versionCmd := version.Command(app)
	planlistCmd := planlist.Command(app)

	rootCmd.AddCommand(
		migrate.Command(app),
		verify.Command(app),
		status.Command(app),
		planlistCmd,
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// flags bound to viper win over the environment
		conf.SyncViper(settings)

		// listing commands need no logger or database
		if cmd.Name() == versionCmd.Name() || cmd.Name() == planlistCmd.Name() {
			return nil
		}
		return app.Init()
	}
	// runs after failed commands too, unlike PersistentPostRun
	cobra.OnFinalize(func() { _ = app.Close() })

	return rootCmd
}

// setupFlags defines flags shared by every subcommand and binds them to viper keys.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	flags := rootCmd.PersistentFlags()
	flags.IntVar(&settings.Migrate.BatchSize, "batch-size", viper.GetInt("migrate.batchsize"), "Rows per source page and target insert")
	flags.Float64Var(&settings.Migrate.MinCoverage, "min-coverage", viper.GetFloat64("migrate.mincoverage"), "Coverage percentage below which a plan is flagged")
	flags.StringVarP(&settings.Migrate.Output, "output", "o", viper.GetString("migrate.output"), "Report format: text, json or yaml")
	flags.StringVar(&settings.Logging.Level, "log-level", viper.GetString("logging.level"), "Log level: trace, debug, info, warn or error")
	flags.StringVar(&settings.Logging.File, "log-file", viper.GetString("logging.file"), "Also write JSON logs to this file")

	bindings := map[string]string{
		"batch-size":   "migrate.batchsize",
		"min-coverage": "migrate.mincoverage",
		"output":       "migrate.output",
		"log-level":    "logging.level",
		"log-file":     "logging.file",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}
