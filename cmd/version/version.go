// Package version provides the version command
package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/casebridge/dispatch-migrate/internal/runtime"
)

// Command creates and returns the version command
func Command(app *runtime.App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(app.Out, app.Build.String())
			return err
		},
	}
}
