package commands

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapexplore/pkg/core"
)

func TestRenderResponse_MultipleFrames(t *testing.T) {
	resp := core.QueryResponse{
		State: core.LoadingStateDone,
		Series: []core.Frame{
			{RefID: "A", Columns: []string{"n"}, Rows: [][]any{{1}}},
			{RefID: "B", Columns: []string{"m"}, Rows: [][]any{{2}, {3}}, Truncated: true},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, renderResponse(&buf, resp, "csv"))
	assert.Equal(t, "-- A\nn\n1\n\n-- B\nm\n2\n3\n(truncated to 2 rows)\n", buf.String())
}

func TestRenderResponse_JSON(t *testing.T) {
	resp := core.QueryResponse{
		Series: []core.Frame{
			{RefID: "A", Columns: []string{"n", "s"}, Rows: [][]any{{1, "x"}}, Truncated: true},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, renderResponse(&buf, resp, "JSON"))
	assert.JSONEq(t, `[{"refId":"A","rows":[{"n":1,"s":"x"}],"truncated":true}]`, buf.String())
}

func TestRenderRows_Empty(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{format: "table", want: "(0 rows)\n"},
		{format: "md", want: "(0 rows)\n"},
		{format: "csv", want: "n\n"},
		{format: "json", want: "[]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, renderRows(&buf, []string{"n"}, nil, tt.format))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestNormalizeFormat(t *testing.T) {
	tests := map[string]string{
		"":         "table",
		"table":    "table",
		"JSON":     "json",
		"csv":      "csv",
		"md":       "md",
		"markdown": "md",
		"yaml":     "table",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeFormat(in), "format %q", in)
	}
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "nil", in: nil, want: "NULL"},
		{name: "bytes", in: []byte("raw"), want: "raw"},
		{name: "time", in: ts, want: "2024-03-14 09:00:00"},
		{name: "float", in: 10.5, want: "10.5"},
		{name: "bool", in: true, want: "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatValue(tt.in))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "SELECT 1", truncate("SELECT\n   1", 20))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "ééééé", truncate("ééééé", 5))
}
