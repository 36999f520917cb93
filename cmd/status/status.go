// Package status provides the status command
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/casebridge/dispatch-migrate/internal/datastore"
	"github.com/casebridge/dispatch-migrate/internal/logger"
	"github.com/casebridge/dispatch-migrate/internal/migration"
	"github.com/casebridge/dispatch-migrate/internal/plans"
	"github.com/casebridge/dispatch-migrate/internal/runtime"
)

// Command creates and returns the status command
func Command(app *runtime.App) *cobra.Command {
	var (
		reset      []string
		issuesPlan string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show checkpoints and recorded issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), app, reset, issuesPlan, limit)
		},
	}

	cmd.Flags().StringSliceVar(&reset, "reset", nil, "Delete the checkpoints of these plans so they restart from the beginning")
	cmd.Flags().StringVar(&issuesPlan, "issues", "", "List recorded issues of this plan")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of issues listed with --issues; 0 lists all")

	return cmd
}

// Report is the status command output.
type Report struct {
	Checkpoints []datastore.MigrationCheckpoint `json:"checkpoints" yaml:"checkpoints"`
	IssueCounts []datastore.IssueCount          `json:"issue_counts" yaml:"issue_counts"`
	Issues      []datastore.MigrationIssue      `json:"issues,omitempty" yaml:"issues,omitempty"`
}

func runStatus(ctx context.Context, app *runtime.App, reset []string, issuesPlan string, limit int) error {
	log := app.Logger("status")

	target, err := app.OpenTarget(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = target.Close() }()

	state := datastore.NewStateManager(target.DB())
	if err := state.EnsureSchema(ctx); err != nil {
		return err
	}

	if len(reset) > 0 {
		if _, err := plans.Select(reset...); err != nil {
			return err
		}
		for _, plan := range reset {
			if err := state.ResetCheckpoint(ctx, plan); err != nil {
				return err
			}
			log.Info("checkpoint reset", logger.String("plan", plan))
		}
	}

	report, err := collect(ctx, state, issuesPlan, limit)
	if err != nil {
		return err
	}
	return write(app.Out, app.Settings.Migrate.Output, report)
}

func collect(ctx context.Context, state *datastore.StateManager, issuesPlan string, limit int) (*Report, error) {
	checkpoints, err := state.ListCheckpoints(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := state.IssueSummary(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{Checkpoints: checkpoints, IssueCounts: counts}
	if issuesPlan != "" {
		if report.Issues, err = state.Issues(ctx, issuesPlan, limit); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func write(w io.Writer, format string, report *Report) error {
	switch strings.ToLower(format) {
	case "", migration.FormatText:
		return writeText(w, report)
	case migration.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case migration.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func writeText(w io.Writer, report *Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	if len(report.Checkpoints) == 0 {
		fmt.Fprintln(tw, "no checkpoints recorded")
	} else {
		fmt.Fprintln(tw, "PLAN\tSTATUS\tLAST KEY\tPROCESSED\tINSERTED\tEXISTING\tSKIPPED\tERRORED\tUPDATED")
		for _, cp := range report.Checkpoints {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
				cp.Plan, cp.Status, cp.LastKey, cp.Processed, cp.Inserted, cp.Existing, cp.Skipped, cp.Errored,
				cp.UpdatedAt.UTC().Format(time.RFC3339))
			if cp.ErrorMessage != "" {
				fmt.Fprintf(tw, "\t  last error: %s\n", cp.ErrorMessage)
			}
		}
	}

	if len(report.IssueCounts) > 0 {
		fmt.Fprintln(tw, "\nPLAN\tISSUE\tCOUNT")
		for _, c := range report.IssueCounts {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", c.Plan, c.Kind, c.Count)
		}
	}

	if len(report.Issues) > 0 {
		fmt.Fprintln(tw, "\nLEGACY ID\tISSUE\tLOOKUP\tREASON")
		for _, is := range report.Issues {
			lookup := is.Lookup
			if lookup == "" {
				lookup = "-"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", is.LegacyID, is.Kind, lookup, is.Reason)
		}
	}
	return tw.Flush()
}
