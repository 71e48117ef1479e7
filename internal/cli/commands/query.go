package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/leapstack-labs/leapexplore/internal/datasource"
	"github.com/leapstack-labs/leapexplore/internal/explore"
	"github.com/leapstack-labs/leapexplore/internal/timerange"
	"github.com/leapstack-labs/leapexplore/internal/ui/hub"
	"github.com/leapstack-labs/leapexplore/pkg/core"
)

// cliPane is the pane driven by the query command.
const cliPane explore.ExploreID = "cli"

var (
	errEmptyQuery = errors.New("empty query")
	timeNow       = time.Now
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Format     string
	Input      string
	Datasource string
	From       string
	To         string
	MaxRows    int
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Run SQL against a datasource",
		Long: `Run ad-hoc SQL against a configured datasource.

The query runs in an explore pane bound to the datasource and time range, so
time macros such as $__timeFilter(created_at) expand to the selected range.
Successful runs are recorded in the rich history.

When invoked without arguments on a terminal, enters interactive REPL mode.`,
		Example: `  # Execute SQL against the preferred datasource
  leapexplore query "SELECT 42 AS answer"

  # Pick a datasource by uid or name and a time range
  leapexplore query -d warehouse --from now-24h \
    "SELECT * FROM orders WHERE $__timeFilter(created_at)"

  # Output as JSON
  leapexplore query "SELECT * FROM orders" --format json

  # Interactive mode
  leapexplore query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: table, json, csv, md (default: --output)")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")
	cmd.Flags().StringVarP(&opts.Datasource, "datasource", "d", "", "Datasource uid or name (default: last used)")
	cmd.Flags().StringVar(&opts.From, "from", core.DefaultRawRange.From, "Start of the time range")
	cmd.Flags().StringVar(&opts.To, "to", core.DefaultRawRange.To, "End of the time range")
	cmd.Flags().IntVar(&opts.MaxRows, "max-rows", 0, "Row cap for this query (default: explore.max_rows)")

	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "json", "csv", "md"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	ref, err := resolveRef(ctx, cmdCtx, opts.Datasource)
	if err != nil {
		return err
	}

	session, err := newQuerySession(cmdCtx, ref, core.RawTimeRange{From: opts.From, To: opts.To}, opts.MaxRows)
	if err != nil {
		return err
	}
	defer session.Close()

	format := outputFormat(cmd, cmdCtx.Cfg)

	// Determine SQL source
	var sqlQuery string
	switch {
	case len(args) > 0:
		sqlQuery = strings.Join(args, " ")
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		sqlQuery = string(content)
	case !isTerminal(cmd.InOrStdin()):
		// Read from stdin (piped input)
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		sqlQuery = string(content)
	default:
		// No input, TTY detected - enter REPL mode
		return runQueryREPL(cmd, cmdCtx, session, format)
	}

	resp, err := session.Run(ctx, sqlQuery)
	if err != nil {
		return err
	}
	return renderResponse(cmd.OutOrStdout(), resp, format)
}

// resolveRef looks up the datasource flag, or picks the org's preferred datasource.
// An explicit reference never falls back to the default.
func resolveRef(ctx context.Context, c *CommandContext, flag string) (core.DataSourceRef, error) {
	if strings.TrimSpace(flag) != "" {
		ds, err := c.Datasources.Registry().Get(c.Cfg.OrgID, datasource.Ref(flag))
		if err != nil {
			return core.DataSourceRef{}, fmt.Errorf("datasource %q: %w", strings.TrimSpace(flag), err)
		}
		return core.DataSourceRef{UID: ds.UID, Name: ds.Name, Type: ds.Type}, nil
	}
	ref, err := c.Datasources.PreferredRef(ctx, c.Cfg.OrgID)
	if err != nil {
		return core.DataSourceRef{}, fmt.Errorf("no datasource selected: %w", err)
	}
	return ref, nil
}

// querySession drives a single explore pane from the command line.
type querySession struct {
	hub     *hub.Hub
	session *hub.Session
	ref     core.DataSourceRef
	rng     core.RawTimeRange
	maxRows int
	started bool
}

func newQuerySession(c *CommandContext, ref core.DataSourceRef, rng core.RawTimeRange, maxRows int) (*querySession, error) {
	loc, err := timerange.ResolveZone(c.Cfg.Explore.DefaultTimezone, nil)
	if err != nil {
		return nil, err
	}
	h := hub.New(hub.Config{
		Datasources: c.Datasources,
		History:     c.History,
		CacheSize:   c.Cfg.Explore.CacheSize,
		DefaultZone: loc,
		Logger:      c.Logger,
	})
	s, err := h.Session(string(cliPane), c.User())
	if err != nil {
		h.Close()
		return nil, err
	}
	return &querySession{hub: h, session: s, ref: ref, rng: rng, maxRows: maxRows}, nil
}

// Run executes expr in the pane and waits for the response.
func (q *querySession) Run(ctx context.Context, expr string) (core.QueryResponse, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return core.QueryResponse{}, errEmptyQuery
	}
	queries := []core.DataQuery{{RefID: "A", Expr: expr, MaxRows: q.maxRows}}

	if !q.started {
		ref := q.ref
		if _, err := q.session.Explorer.InitializeExplore(ctx, explore.InitOptions{
			ExploreID:  cliPane,
			Datasource: &ref,
			Queries:    queries,
			Range:      q.rng,
		}); err != nil {
			return core.QueryResponse{}, err
		}
		q.started = true
	} else {
		q.session.Store.Dispatch(explore.ChangeQueries(cliPane, explore.EnsureQueries(queries)))
		q.session.Explorer.RunQueriesNow(cliPane)
	}
	return q.result()
}

// UseDatasource binds the pane to ref and re-runs the last query.
func (q *querySession) UseDatasource(ctx context.Context, ref core.DataSourceRef) (core.QueryResponse, bool, error) {
	if !q.started {
		q.ref = ref
		return core.QueryResponse{}, false, nil
	}
	if err := q.session.Explorer.ChangeDatasource(ctx, cliPane, ref); err != nil {
		return core.QueryResponse{}, false, err
	}
	q.ref = ref
	resp, err := q.result()
	return resp, true, err
}

// SetRange changes the time range and re-runs the last query.
func (q *querySession) SetRange(rng core.RawTimeRange) (core.QueryResponse, bool, error) {
	if !q.started {
		loc, err := timerange.ResolveZone(q.session.Store.State().User.TimeZone, nil)
		if err != nil {
			return core.QueryResponse{}, false, err
		}
		if _, err := timerange.Resolve(rng, loc, timeNow()); err != nil {
			return core.QueryResponse{}, false, err
		}
		q.rng = rng
		return core.QueryResponse{}, false, nil
	}
	if err := q.session.Explorer.ChangeRange(cliPane, rng); err != nil {
		return core.QueryResponse{}, false, err
	}
	q.rng = rng
	resp, err := q.result()
	return resp, true, err
}

// Pane returns the current pane state.
func (q *querySession) Pane() (explore.PaneState, bool) {
	return q.session.Store.Pane(cliPane)
}

func (q *querySession) result() (core.QueryResponse, error) {
	q.session.Store.Wait()
	pane, ok := q.Pane()
	if !ok {
		return core.QueryResponse{}, fmt.Errorf("pane %s is not initialized", cliPane)
	}
	resp := pane.QueryResponse
	if resp.State == core.LoadingStateError {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return resp, fmt.Errorf("query failed: %s", strings.Join(msgs, "; "))
	}
	return resp, nil
}

// Close stops the pane and its running queries.
func (q *querySession) Close() {
	q.hub.Close()
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
