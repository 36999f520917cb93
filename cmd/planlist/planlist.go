// Package planlist provides the plans command
package planlist

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/casebridge/dispatch-migrate/internal/migration"
	"github.com/casebridge/dispatch-migrate/internal/plans"
	"github.com/casebridge/dispatch-migrate/internal/runtime"
)

// Command creates and returns the plans command
func Command(app *runtime.App) *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List registered migration plans in run order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writePlans(app.Out, plans.Registry())
		},
	}
}

func writePlans(w io.Writer, registry []*migration.Plan) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tPLAN\tTARGET\tLOOKUPS\tDEPENDS ON\tDESCRIPTION")
	for i, p := range registry {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			i+1, p.Name, p.Target.Table, orDash(p.LookupTables()), orDash(p.DependsOn), p.Description)
	}
	return tw.Flush()
}

func orDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}
