package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/leapstack-labs/leapexplore/pkg/core"
)

// renderResponse writes every frame of a query response in format.
func renderResponse(w io.Writer, resp core.QueryResponse, format string) error {
	if normalizeFormat(format) == "json" {
		return renderJSON(w, resp.Series)
	}
	for i, frame := range resp.Series {
		if len(resp.Series) > 1 {
			if i > 0 {
				_, _ = fmt.Fprintln(w)
			}
			_, _ = fmt.Fprintf(w, "-- %s\n", frame.RefID)
		}
		if err := renderRows(w, frame.Columns, frame.Rows, format); err != nil {
			return err
		}
		if frame.Truncated {
			_, _ = fmt.Fprintf(w, "(truncated to %d rows)\n", len(frame.Rows))
		}
	}
	return nil
}

// renderRows writes a result set as a table, CSV, markdown or JSON.
func renderRows(w io.Writer, cols []string, rows [][]any, format string) error {
	format = normalizeFormat(format)
	if format == "json" {
		return renderJSON(w, rowObjects(cols, rows))
	}

	if len(rows) == 0 && format != "csv" {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)

	header := make(table.Row, len(cols))
	for i, col := range cols {
		header[i] = col
	}
	t.AppendHeader(header)
	for _, r := range rows {
		row := make(table.Row, len(r))
		for i, v := range r {
			row[i] = formatValue(v)
		}
		t.AppendRow(row)
	}

	switch format {
	case "csv":
		t.RenderCSV()
	case "md":
		t.RenderMarkdown()
	default:
		t.SetStyle(table.StyleLight)
		t.Render()
		_, _ = fmt.Fprintf(w, "(%d rows)\n", len(rows))
	}
	return nil
}

// frameJSON is the JSON form of a result frame.
type frameJSON struct {
	RefID     string           `json:"refId"`
	Rows      []map[string]any `json:"rows"`
	Truncated bool             `json:"truncated,omitempty"`
}

func renderJSON(w io.Writer, v any) error {
	if frames, ok := v.([]core.Frame); ok {
		out := make([]frameJSON, len(frames))
		for i, f := range frames {
			out[i] = frameJSON{RefID: f.RefID, Rows: rowObjects(f.Columns, f.Rows), Truncated: f.Truncated}
		}
		v = out
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func rowObjects(cols []string, rows [][]any) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		obj := make(map[string]any, len(cols))
		for i, col := range cols {
			if i < len(r) {
				obj[col] = r[i]
			}
		}
		out = append(out, obj)
	}
	return out
}

func normalizeFormat(format string) string {
	switch strings.ToLower(format) {
	case "json":
		return "json"
	case "csv":
		return "csv"
	case "md", "markdown":
		return "md"
	default:
		return "table"
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprintf("%v", val)
	}
}

// truncate shortens s to max runes, collapsing whitespace.
func truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
