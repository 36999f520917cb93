// Package verify provides the verify command
package verify

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/casebridge/dispatch-migrate/internal/errors"
	"github.com/casebridge/dispatch-migrate/internal/logger"
	"github.com/casebridge/dispatch-migrate/internal/migration"
	"github.com/casebridge/dispatch-migrate/internal/plans"
	"github.com/casebridge/dispatch-migrate/internal/runtime"
	"github.com/casebridge/dispatch-migrate/internal/supabase"
)

// Command creates and returns the verify command
func Command(app *runtime.App) *cobra.Command {
	var (
		useSupabase bool
		strict      bool
	)

	cmd := &cobra.Command{
		Use:   "verify [plan...]",
		Short: "Compare source and target row counts per plan",
		Long: `Verify counts the rows each plan reads from the source and the target rows carrying a
legacy id, and judges the coverage against --min-coverage. With --supabase the target count is
cross-checked through the Supabase REST endpoint.`,
		ValidArgs: plans.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), app, args, useSupabase, strict)
		},
	}

	cmd.Flags().BoolVar(&useSupabase, "supabase", false, "Cross-check target counts through the Supabase REST endpoint")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when a plan is below --min-coverage")

	return cmd
}

func runVerify(ctx context.Context, app *runtime.App, names []string, useSupabase, strict bool) error {
	log := app.Logger("verify")

	selected, err := plans.Select(names...)
	if err != nil {
		return err
	}

	var remote migration.RemoteCounter
	if useSupabase {
		client, err := supabase.New(app.Settings.Supabase, supabase.WithLogger(app.Logger("supabase")))
		if err != nil {
			return err
		}
		defer client.Close()
		remote = client
	}

	source, target, err := app.OpenStores(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = source.Close()
		_ = target.Close()
	}()

	results, err := migration.Verify(ctx, source, target, selected, remote)
	if err != nil {
		return err
	}

	minCoverage := app.Settings.Migrate.MinCoverage
	if err := migration.WriteCoverage(app.Out, app.Settings.Migrate.Output, results, minCoverage); err != nil {
		return err
	}

	var below []string
	for _, c := range results {
		if !c.Healthy(minCoverage) {
			below = append(below, c.Plan)
		}
	}
	if len(below) > 0 {
		log.Warn("plans below coverage threshold",
			logger.Strings("plans", below),
			logger.Float64("min_coverage", minCoverage))
		if strict {
			return errors.Newf("%d plans below %.2f%% coverage", len(below), minCoverage).
				Component("verify").
				Category(errors.CategoryValidation).
				Context("plans", below).
				Build()
		}
	}
	return nil
}
