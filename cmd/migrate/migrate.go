// Package migrate provides the migrate command
package migrate

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/casebridge/dispatch-migrate/internal/conf"
	"github.com/casebridge/dispatch-migrate/internal/datastore"
	"github.com/casebridge/dispatch-migrate/internal/errors"
	"github.com/casebridge/dispatch-migrate/internal/logger"
	"github.com/casebridge/dispatch-migrate/internal/migration"
	"github.com/casebridge/dispatch-migrate/internal/observability/metrics"
	"github.com/casebridge/dispatch-migrate/internal/plans"
	"github.com/casebridge/dispatch-migrate/internal/runtime"
)

// Command creates and returns the migrate command
func Command(app *runtime.App) *cobra.Command {
	m := &app.Settings.Migrate

	cmd := &cobra.Command{
		Use:   "migrate [plan...]",
		Short: "Run migration plans in dependency order",
		Long: `Migrate copies legacy dispatch rows into the target schema. Without arguments every
registered plan runs in dependency order. Re-running is safe: rows that already reached the
target are counted as existing and never duplicated.`,
		ValidArgs: plans.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), app, args)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&m.DryRun, "dry-run", false, "Transform and classify rows without writing")
	flags.BoolVar(&m.Resume, "resume", false, "Continue each plan after its last checkpoint")
	flags.BoolVar(&m.RecordIssues, "record-issues", false, "Persist skipped and errored legacy ids to migration_issues")
	flags.BoolVar(&m.RowFallback, "row-fallback", false, "Retry the rows of a failed batch one at a time")
	flags.Float64Var(&m.BatchesPerSecond, "batches-per-second", 0, "Throttle target writes; 0 disables throttling")
	flags.StringVar(&m.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this file when done")
	flags.BoolVar(&m.CreateTables, "create-tables", false, "Create missing target tables before running")
	flags.BoolVar(&m.Strict, "strict", false, "Fail when a plan ends below --min-coverage")

	return cmd
}

func runMigrate(ctx context.Context, app *runtime.App, names []string) error {
	log := app.Logger("migrate")
	settings := app.Settings.Migrate

	selected, err := plans.Select(names...)
	if err != nil {
		return err
	}

	source, target, err := app.OpenStores(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = source.Close()
		_ = target.Close()
	}()

	if settings.CreateTables && !settings.DryRun {
		if err := plans.CreateSchema(ctx, target.DB()); err != nil {
			return err
		}
		log.Info("target tables ensured", logger.String("target", target.Location()))
	}

	state := datastore.NewStateManager(target.DB())
	stateReady := true
	if settings.DryRun {
		// dry runs never create tables; a fresh target simply has no checkpoints
		stateReady = state.HasSchema(ctx)
	} else if err := state.EnsureSchema(ctx); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	recorder, err := metrics.NewMigrationMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	engine, err := migration.New(engineConfig(app, source, target, state, stateReady, recorder))
	if err != nil {
		return err
	}

	log.Info("migration started",
		logger.String("run_id", engine.RunID()),
		logger.Strings("plans", planNames(selected)),
		logger.String("source", source.Location()),
		logger.String("target", target.Location()),
		logger.Bool("dry_run", settings.DryRun))

	reports, runErr := engine.RunAll(ctx, selected)

	summary := migration.Summarize(engine.RunID(), reports, settings.MinCoverage)
	if err := summary.Write(app.Out, settings.Output); err != nil {
		return err
	}

	if settings.MetricsFile != "" {
		if err := recorder.WriteTextfile(settings.MetricsFile); err != nil {
			log.Warn("failed to write metrics file", logger.String("path", settings.MetricsFile), logger.Error(err))
		}
	}

	if runErr != nil {
		return runErr
	}
	if settings.Strict && !summary.Healthy {
		return errors.Newf("coverage below %.2f%% in at least one plan", settings.MinCoverage).
			Component("migrate").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

func engineConfig(app *runtime.App, source, target *datastore.Store, state *datastore.StateManager, stateReady bool, recorder metrics.MigrationRecorder) *migration.Config {
	s := app.Settings.Migrate
	cfg := &migration.Config{
		Source:  source,
		Target:  target,
		Logger:  app.Logger("migration"),
		Metrics: recorder,
		Cache:   migration.NewLookupCache(migration.DefaultLookupTTL),
		Options: optionsFrom(s),
	}
	// dry runs leave the target untouched; with --resume they only read the cursor
	if !s.DryRun || (s.Resume && stateReady) {
		cfg.Checkpoints = state
	}
	if !s.DryRun && s.RecordIssues {
		cfg.Issues = state
	}
	return cfg
}

func optionsFrom(s conf.MigrateSettings) migration.Options {
	return migration.Options{
		BatchSize:        s.BatchSize,
		DryRun:           s.DryRun,
		Resume:           s.Resume,
		RowFallback:      s.RowFallback,
		BatchesPerSecond: s.BatchesPerSecond,
		RecordIssues:     s.RecordIssues,
	}
}

func planNames(selected []*migration.Plan) []string {
	names := make([]string, len(selected))
	for i, p := range selected {
		names[i] = p.Name
	}
	return names
}
