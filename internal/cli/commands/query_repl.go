package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapexplore/pkg/core"
)

const (
	replPrompt     = "leapexplore> "
	replContinue   = "        ...> "
	replHistoryLen = 20
)

func runQueryREPL(cmd *cobra.Command, c *CommandContext, session *querySession, format string) error {
	ctx := cmd.Context()

	// Setup history file next to the rich history database
	historyFile := ""
	if c.Cfg.History.Path != ":memory:" {
		historyFile = filepath.Join(filepath.Dir(c.Cfg.History.Path), "query_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    newREPLCompleter(c),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdin:           io.NopCloser(cmd.InOrStdin()),
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "LeapExplore Query REPL (datasource: %s, range: %s to %s)\n",
		session.ref.String(), session.rng.From, session.rng.To)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(cmd.OutOrStdout())

	repl := &queryREPL{cmd: cmd, c: c, session: session, format: format}

	var multiLineBuffer strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			multiLineBuffer.Reset()
			rl.SetPrompt(replPrompt)
			continue
		}
		if err != nil {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// Dot-commands are only recognized at the start of a statement
		if multiLineBuffer.Len() == 0 && strings.HasPrefix(line, ".") {
			if quit := repl.dotCommand(ctx, line); quit {
				break
			}
			continue
		}

		// Accumulate multi-line SQL until semicolon
		multiLineBuffer.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			multiLineBuffer.WriteString(" ")
			rl.SetPrompt(replContinue)
			continue
		}
		rl.SetPrompt(replPrompt)

		query := strings.TrimSuffix(multiLineBuffer.String(), ";")
		multiLineBuffer.Reset()
		repl.execute(ctx, query)
	}

	return nil
}

// queryREPL executes statements and dot-commands against one query session.
type queryREPL struct {
	cmd     *cobra.Command
	c       *CommandContext
	session *querySession
	format  string
}

func (r *queryREPL) out() io.Writer    { return r.cmd.OutOrStdout() }
func (r *queryREPL) errOut() io.Writer { return r.cmd.ErrOrStderr() }

func (r *queryREPL) execute(ctx context.Context, query string) {
	resp, err := r.session.Run(ctx, query)
	r.show(resp, true, err)
}

// show renders a response produced by a re-run, or reports its error.
func (r *queryREPL) show(resp core.QueryResponse, ran bool, err error) {
	if err != nil {
		_, _ = fmt.Fprintf(r.errOut(), "Error: %v\n", err)
		return
	}
	if !ran {
		return
	}
	if err := renderResponse(r.out(), resp, r.format); err != nil {
		_, _ = fmt.Fprintf(r.errOut(), "Error: %v\n", err)
	}
	_, _ = fmt.Fprintln(r.out())
}

// dotCommand handles a REPL command and reports whether the REPL should exit.
func (r *queryREPL) dotCommand(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(r.out())

	case ".datasources":
		if err := renderDatasources(r.out(), r.c.Datasources.Registry().List(r.c.Cfg.OrgID), nil, r.format); err != nil {
			_, _ = fmt.Fprintf(r.errOut(), "Error: %v\n", err)
		}

	case ".use":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(r.errOut(), "Usage: .use <datasource>")
			return false
		}
		ref, err := resolveRef(ctx, r.c, strings.Join(parts[1:], " "))
		if err != nil {
			_, _ = fmt.Fprintf(r.errOut(), "Error: %v\n", err)
			return false
		}
		resp, ran, err := r.session.UseDatasource(ctx, ref)
		if err == nil || ran {
			_, _ = fmt.Fprintf(r.out(), "Using datasource %s\n", ref.String())
		}
		r.show(resp, ran, err)

	case ".range":
		if len(parts) < 2 || len(parts) > 3 {
			_, _ = fmt.Fprintln(r.errOut(), "Usage: .range <from> [to]")
			return false
		}
		rng := core.RawTimeRange{From: parts[1], To: "now"}
		if len(parts) == 3 {
			rng.To = parts[2]
		}
		resp, ran, err := r.session.SetRange(rng)
		if err == nil || ran {
			_, _ = fmt.Fprintf(r.out(), "Range %s to %s\n", rng.From, rng.To)
		}
		r.show(resp, ran, err)

	case ".describe":
		if len(parts) != 2 {
			_, _ = fmt.Fprintln(r.errOut(), "Usage: .describe <table>")
			return false
		}
		if err := r.describe(ctx, parts[1]); err != nil {
			_, _ = fmt.Fprintf(r.errOut(), "Error: %v\n", err)
		}

	case ".format":
		if len(parts) != 2 {
			_, _ = fmt.Fprintln(r.errOut(), "Usage: .format <table|json|csv|md>")
			return false
		}
		r.format = normalizeFormat(parts[1])

	case ".history":
		pane, ok := r.session.Pane()
		if !ok || len(pane.History) == 0 {
			_, _ = fmt.Fprintln(r.out(), "(no history)")
			return false
		}
		for i, item := range pane.History {
			if i == replHistoryLen {
				break
			}
			_, _ = fmt.Fprintf(r.out(), "%s  %s\n", item.TS.Format("2006-01-02 15:04:05"), truncate(item.Query.Expr, 80))
		}

	case ".clear":
		_, _ = fmt.Fprint(r.out(), "\033[H\033[2J")

	default:
		_, _ = fmt.Fprintf(r.errOut(), "Unknown command: %s (type .help for commands)\n", command)
	}
	return false
}

// describe lists the columns of table in the current datasource.
func (r *queryREPL) describe(ctx context.Context, table string) error {
	inst, err := r.c.Datasources.Instance(ctx, r.c.Cfg.OrgID, r.session.ref)
	if err != nil {
		return err
	}
	meta, err := inst.Describe(ctx, table)
	if err != nil {
		return err
	}
	rows := make([][]any, len(meta.Columns))
	for i, col := range meta.Columns {
		rows[i] = []any{col.Position, col.Name, col.Type, col.Nullable}
	}
	if err := renderRows(r.out(), []string{"position", "column", "type", "nullable"}, rows, r.format); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(r.out(), "%s.%s: %d rows\n", meta.Schema, meta.Name, meta.RowCount)
	return nil
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help              Show this help message
  .datasources       List datasources
  .use <datasource>  Switch datasource (uid or name) and re-run
  .range <from> [to] Change the time range, e.g. .range now-24h now
  .describe <table>  Show the columns of a table
  .format <format>   Switch output format: table, json, csv, md
  .history           Show recent queries of this datasource
  .clear             Clear the screen
  .quit / .exit      Exit the REPL

Tips:
  - SQL statements must end with a semicolon (;)
  - Use arrow keys to navigate history
  - Tab completion works for commands and datasource names
  - $__timeFilter(col), $__timeFrom() and $__timeTo() expand to the range
`
	_, _ = fmt.Fprintln(w, help)
}

// newREPLCompleter creates a readline completer for dot-commands and datasources.
func newREPLCompleter(c *CommandContext) *readline.PrefixCompleter {
	var names []readline.PrefixCompleterInterface
	for _, ds := range c.Datasources.Registry().List(c.Cfg.OrgID) {
		names = append(names, readline.PcItem(ds.UID))
		if ds.Name != ds.UID {
			names = append(names, readline.PcItem(ds.Name))
		}
	}

	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".datasources"),
		readline.PcItem(".use", names...),
		readline.PcItem(".range", readline.PcItem("now-1h"), readline.PcItem("now-24h"), readline.PcItem("now-7d")),
		readline.PcItem(".describe"),
		readline.PcItem(".format", readline.PcItem("table"), readline.PcItem("json"), readline.PcItem("csv"), readline.PcItem("md")),
		readline.PcItem(".history"),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}
