package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapexplore/pkg/adapter"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display LeapExplore version and the registered datasource adapters.`,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "LeapExplore v%s\n", version)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Ad-hoc SQL exploration built with Go, DuckDB and PostgreSQL")
			if adapters := adapter.ListAdapters(); len(adapters) > 0 {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Adapters: %s\n", strings.Join(adapters, ", "))
			}
		},
	}
}
