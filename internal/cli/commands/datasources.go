package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapexplore/internal/datasource"
)

// DatasourcesOptions holds options for the datasources command.
type DatasourcesOptions struct {
	Check  bool
	Format string
}

// NewDatasourcesCommand creates the datasources command.
func NewDatasourcesCommand() *cobra.Command {
	opts := &DatasourcesOptions{}

	cmd := &cobra.Command{
		Use:     "datasources",
		Aliases: []string{"ds"},
		Short:   "List configured datasources",
		Long: `List the datasources of the current organization.

Datasources come from leapexplore.yaml merged with the YAML files of the
provisioning directory. With --check every datasource is connected and
pinged, and the command fails when any of them is unreachable.`,
		Example: `  leapexplore datasources
  leapexplore datasources --check
  leapexplore datasources -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDatasources(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Check, "check", false, "Connect to every datasource and report its health")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: table, json, csv, md (default: --output)")
	return cmd
}

func runDatasources(cmd *cobra.Command, opts *DatasourcesOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	list := cmdCtx.Datasources.Registry().List(cmdCtx.Cfg.OrgID)
	if !opts.Check {
		return renderDatasources(cmd.OutOrStdout(), list, nil, outputFormat(cmd, cmdCtx.Cfg))
	}

	checks := cmdCtx.Datasources.Check(cmd.Context(), cmdCtx.Cfg.OrgID)
	if err := renderDatasources(cmd.OutOrStdout(), list, checks, outputFormat(cmd, cmdCtx.Cfg)); err != nil {
		return err
	}
	failed := 0
	for _, c := range checks {
		if c.Err != nil {
			failed++
			cmdCtx.Logger.Debug("datasource check failed", "uid", c.Settings.UID, "error", c.Err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d datasources failed the check", failed, len(checks))
	}
	return nil
}

// renderDatasources writes the datasource list, with health columns when checks are given.
func renderDatasources(w io.Writer, list []datasource.Settings, checks []datasource.CheckResult, format string) error {
	cols := []string{"uid", "name", "type", "default"}
	if checks != nil {
		cols = append(cols, "status", "duration", "error")
	}

	byUID := make(map[string]datasource.CheckResult, len(checks))
	for _, c := range checks {
		byUID[c.Settings.UID] = c
	}

	rows := make([][]any, 0, len(list))
	for _, ds := range list {
		row := []any{ds.UID, ds.Name, ds.Type, ds.IsDefault}
		if checks != nil {
			c, ok := byUID[ds.UID]
			status, msg := "ok", ""
			switch {
			case !ok:
				status = "skipped"
			case c.Err != nil:
				status, msg = "failed", c.Err.Error()
			}
			row = append(row, status, c.Duration.Round(time.Millisecond).String(), msg)
		}
		rows = append(rows, row)
	}
	return renderRows(w, cols, rows, format)
}
