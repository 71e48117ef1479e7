package commands

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapexplore/internal/timerange"
	"github.com/leapstack-labs/leapexplore/pkg/core"
)

// HistoryListOptions holds options for the history list command.
type HistoryListOptions struct {
	Search      string
	Datasources []string
	Starred     bool
	From        int
	To          int
	Sort        string
	Page        int
	PageSize    int
	Format      string
}

// NewHistoryCommand creates the history command and its subcommands.
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse and manage the rich query history",
		Long: `Browse and manage the rich history of executed queries.

Every successful query run is recorded with its datasource. Entries can be
searched, starred, commented and deleted. Starred entries survive the
max_entries cap, the retention cleanup and history clear.`,
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryStarCommand())
	cmd.AddCommand(newHistoryCommentCommand())
	cmd.AddCommand(newHistoryDeleteCommand())
	cmd.AddCommand(newHistoryClearCommand())
	cmd.AddCommand(newHistoryCleanupCommand())
	return cmd
}

func newHistoryListCommand() *cobra.Command {
	defaults := core.DefaultRichHistorySearchFilters()
	opts := &HistoryListOptions{}

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Search the rich history",
		Example: `  leapexplore history list
  leapexplore history list --search orders --starred
  leapexplore history list --datasource Warehouse --from 0 --to 30 --sort oldest`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			filters := core.RichHistorySearchFilters{
				Search:      opts.Search,
				SortOrder:   core.SortOrder(opts.Sort),
				Datasources: opts.Datasources,
				From:        opts.From,
				To:          opts.To,
				Starred:     opts.Starred,
				Page:        opts.Page,
				PageSize:    opts.PageSize,
			}
			entries, total, err := cmdCtx.History.Search(cmd.Context(), cmdCtx.Cfg.OrgID, filters)
			if err != nil {
				return err
			}

			loc, err := timerange.ResolveZone(cmdCtx.Cfg.Explore.DefaultTimezone, nil)
			if err != nil {
				return err
			}
			return renderHistory(cmd.OutOrStdout(), entries, total, loc, outputFormat(cmd, cmdCtx.Cfg))
		},
	}

	cmd.Flags().StringVarP(&opts.Search, "search", "s", "", "Match query text or comment")
	cmd.Flags().StringSliceVarP(&opts.Datasources, "datasource", "d", nil, "Only entries of these datasource names")
	cmd.Flags().BoolVar(&opts.Starred, "starred", false, "Only starred entries")
	cmd.Flags().IntVar(&opts.From, "from", defaults.From, "Newest day to include, in days ago")
	cmd.Flags().IntVar(&opts.To, "to", defaults.To, "Oldest day to include, in days ago")
	cmd.Flags().StringVar(&opts.Sort, "sort", string(defaults.SortOrder), "Sort order: newest, oldest, datasource-az, datasource-za")
	cmd.Flags().IntVar(&opts.Page, "page", defaults.Page, "Page number")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", defaults.PageSize, "Entries per page")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: table, json, csv, md (default: --output)")

	_ = cmd.RegisterFlagCompletionFunc("sort", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{
			string(core.SortOrderNewest), string(core.SortOrderOldest),
			string(core.SortOrderDatasourceAZ), string(core.SortOrderDatasourceZA),
		}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func newHistoryStarCommand() *cobra.Command {
	var unstar bool
	cmd := &cobra.Command{
		Use:   "star <id>",
		Short: "Star or unstar an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			entry, err := cmdCtx.History.Star(cmd.Context(), cmdCtx.Cfg.OrgID, args[0], !unstar)
			if err != nil {
				return err
			}
			state := "Starred"
			if !entry.Starred {
				state = "Unstarred"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", state, entry.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&unstar, "unstar", false, "Remove the star")
	return cmd
}

func newHistoryCommentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "comment <id> <text>",
		Short: "Set the comment of an entry",
		Long:  `Set the comment of an entry. An empty text clears the comment.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			entry, err := cmdCtx.History.Comment(cmd.Context(), cmdCtx.Cfg.OrgID, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Commented %s\n", entry.ID)
			return nil
		},
	}
}

func newHistoryDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		Short:   "Delete entries",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			for _, id := range args {
				if err := cmdCtx.History.Delete(cmd.Context(), cmdCtx.Cfg.OrgID, id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			}
			return nil
		},
	}
}

func newHistoryClearCommand() *cobra.Command {
	var includeStarred, yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all entries of the organization",
		Long: `Delete all rich history entries of the organization.

Starred entries are kept unless --include-starred is given. On a terminal
the command asks for confirmation unless --yes is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if !yes {
				if !isTerminal(cmd.InOrStdin()) {
					return fmt.Errorf("refusing to clear history without confirmation (use --yes)")
				}
				what := "unstarred entries"
				if includeStarred {
					what = "entries, including starred ones"
				}
				if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete all %s of org %d?", what, cmdCtx.Cfg.OrgID)) {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}
			}

			n, err := cmdCtx.History.DeleteAll(cmd.Context(), cmdCtx.Cfg.OrgID, includeStarred)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d entries\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&includeStarred, "include-starred", false, "Also delete starred entries")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newHistoryCleanupCommand() *cobra.Command {
	var retention time.Duration
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete unstarred entries older than the retention",
		Long: `Delete unstarred entries of every organization older than the retention.

The retention defaults to history.retention from the configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if !cmd.Flags().Changed("retention") {
				retention = cmdCtx.Cfg.History.Retention
			}
			if retention <= 0 {
				return fmt.Errorf("retention must be positive, got %s", retention)
			}
			n, err := cmdCtx.History.Cleanup(cmd.Context(), retention)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries older than %s\n", n, retention)
			return nil
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", 0, "Age beyond which unstarred entries are removed")
	return cmd
}

// renderHistory writes one page of rich history entries.
func renderHistory(w io.Writer, entries []core.RichHistoryQuery, total int, loc *time.Location, format string) error {
	if normalizeFormat(format) == "json" {
		return renderJSON(w, struct {
			Entries []core.RichHistoryQuery `json:"entries"`
			Total   int                     `json:"total"`
		}{entries, total})
	}

	out := termenv.NewOutput(w)
	star := out.String("★").Foreground(out.Color("3")).String()

	cols := []string{"id", "created", "datasource", "starred", "query", "comment"}
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		marker := ""
		if e.Starred {
			marker = star
		}
		exprs := make([]string, 0, len(e.Queries))
		for _, q := range e.Queries {
			exprs = append(exprs, q.Expr)
		}
		rows = append(rows, []any{
			e.ID,
			e.CreatedAt.In(loc).Format("2006-01-02 15:04"),
			e.DatasourceName,
			marker,
			truncate(strings.Join(exprs, "; "), 60),
			e.Comment,
		})
	}
	if err := renderRows(w, cols, rows, format); err != nil {
		return err
	}
	if normalizeFormat(format) == "table" && total > len(entries) {
		_, _ = fmt.Fprintf(w, "(%d of %d entries)\n", len(entries), total)
	}
	return nil
}

// confirm asks a yes/no question on w and reads the answer from r.
func confirm(r io.Reader, w io.Writer, question string) bool {
	_, _ = fmt.Fprintf(w, "%s [y/N] ", question)
	answer, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
