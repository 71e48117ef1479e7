package pane

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapexplore/internal/explore"
	"github.com/leapstack-labs/leapexplore/internal/ui/features"
	"github.com/leapstack-labs/leapexplore/pkg/core"
)

func setupTestClient(t *testing.T) (*features.Client, *features.TestFixture, http.Handler) {
	t.Helper()

	fixture := features.SetupTestFixture(t)
	r := chi.NewRouter()
	require.NoError(t, SetupRoutes(r, fixture.Sessions, fixture.Datasources))
	return features.NewClient(t, r), fixture, r
}

func leftPane(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pane, _ := features.Path(features.LastSignals(t, rec.Body.String()), "explore", "left").(map[string]any)
	return pane
}

func initLeft(t *testing.T, c *features.Client, signals InitSignals) map[string]any {
	t.Helper()
	return leftPane(t, c.Do(http.MethodPost, "/api/explore/left/init", signals))
}

func waitForState(t *testing.T, c *features.Client, want core.LoadingState) map[string]any {
	t.Helper()
	var pane map[string]any
	require.Eventually(t, func() bool {
		pane = leftPane(t, c.Do(http.MethodGet, "/api/explore/left/", nil))
		return features.Path(pane, "queryResponse", "state") == string(want)
	}, 5*time.Second, 10*time.Millisecond)
	return pane
}

func TestInit_RunsQueries(t *testing.T) {
	c, _, _ := setupTestClient(t)

	pane := initLeft(t, c, InitSignals{
		Datasource: &core.DataSourceRef{UID: "mem"},
		Queries:    []core.DataQuery{{Expr: "SELECT 42 AS answer"}},
		Range:      core.RawTimeRange{From: "now-6h", To: "now"},
	})
	require.NotNil(t, pane)
	assert.Equal(t, true, pane["initialized"])
	assert.Equal(t, "mem", features.Path(pane, "datasource", "uid"))
	assert.Equal(t, "now-6h", features.Path(pane, "range", "raw", "from"))
	queries := pane["queries"].([]any)
	require.Len(t, queries, 1)
	assert.Equal(t, "A", features.Path(queries[0].(map[string]any), "refId"))
	assert.Len(t, pane["queryKeys"], 1)

	done := waitForState(t, c, core.LoadingStateDone)
	series := features.Path(done, "queryResponse", "series").([]any)
	require.Len(t, series, 1)
	frame := series[0].(map[string]any)
	assert.Equal(t, []any{"answer"}, frame["columns"])
	assert.Equal(t, []any{[]any{float64(42)}}, frame["rows"])

	var history []any
	require.Eventually(t, func() bool {
		history, _ = leftPane(t, c.Do(http.MethodGet, "/api/explore/left/", nil))["history"].([]any)
		return len(history) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "SELECT 42 AS answer", features.Path(history[0].(map[string]any), "query", "expr"))
}

func TestInit_UsesPreferredDatasource(t *testing.T) {
	c, _, _ := setupTestClient(t)

	pane := initLeft(t, c, InitSignals{})
	assert.Equal(t, "mem", features.Path(pane, "datasource", "uid"), "org default is used")
	assert.Equal(t, false, pane["datasourceMissing"])
	assert.Len(t, pane["queries"], 1, "a blank row is created")
}

func TestInit_UnknownDatasource(t *testing.T) {
	c, _, _ := setupTestClient(t)

	rec := c.Do(http.MethodPost, "/api/explore/left/init", InitSignals{
		Datasource: &core.DataSourceRef{UID: "nope"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "console.error")
	assert.Nil(t, leftPane(t, rec), "nothing is dispatched when resolution fails")
}

func TestInit_InvalidSignals(t *testing.T) {
	_, _, handler := setupTestClient(t)

	req := httptest.NewRequest(http.MethodPost, "/api/explore/left/init", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaneActions(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		path    string
		signals any
		check   func(t *testing.T, pane map[string]any)
	}{
		{
			name:    "resize",
			method:  http.MethodPost,
			path:    "/resize",
			signals: ResizeSignals{Width: 800},
			check: func(t *testing.T, pane map[string]any) {
				assert.Equal(t, float64(800), pane["containerWidth"])
			},
		},
		{
			name:    "merge one panel",
			method:  http.MethodPost,
			path:    "/panels",
			signals: PanelsSignals{Panel: "graph", State: explore.PanelState{"visible": true}},
			check: func(t *testing.T, pane map[string]any) {
				assert.Equal(t, true, features.Path(pane, "panelsState", "graph", "visible"))
				assert.Equal(t, "compact", features.Path(pane, "panelsState", "table", "mode"), "other panels are kept")
			},
		},
		{
			name:    "replace panels",
			method:  http.MethodPost,
			path:    "/panels",
			signals: PanelsSignals{Panels: map[string]explore.PanelState{"logs": {"open": true}}},
			check: func(t *testing.T, pane map[string]any) {
				assert.Equal(t, map[string]any{"logs": map[string]any{"open": true}}, pane["panelsState"])
			},
		},
		{
			name:    "replace queries",
			method:  http.MethodPost,
			path:    "/queries",
			signals: QueriesSignals{Queries: []core.DataQuery{{Expr: "SELECT 1"}, {Expr: "SELECT 2"}}},
			check: func(t *testing.T, pane map[string]any) {
				queries := pane["queries"].([]any)
				require.Len(t, queries, 2)
				assert.Equal(t, "B", features.Path(queries[1].(map[string]any), "refId"))
				assert.Len(t, pane["queryKeys"], 2)
			},
		},
		{
			name:    "add row",
			method:  http.MethodPost,
			path:    "/rows",
			signals: RowSignals{Index: 0, Query: core.DataQuery{Expr: "SELECT 0"}},
			check: func(t *testing.T, pane map[string]any) {
				queries := pane["queries"].([]any)
				require.Len(t, queries, 2)
				first := queries[0].(map[string]any)
				assert.Equal(t, "SELECT 0", first["expr"])
				assert.Equal(t, "B", first["refId"], "refIds stay unique")
			},
		},
		{
			name:   "remove row",
			method: http.MethodDelete,
			path:   "/rows/0",
			check: func(t *testing.T, pane map[string]any) {
				assert.Empty(t, pane["queries"])
			},
		},
		{
			name:    "change range",
			method:  http.MethodPost,
			path:    "/range",
			signals: RangeSignals{Range: core.RawTimeRange{From: "now-7d", To: "now"}, RefreshInterval: "30s"},
			check: func(t *testing.T, pane map[string]any) {
				assert.Equal(t, "now-7d", features.Path(pane, "range", "raw", "from"))
				assert.Equal(t, "30s", pane["refreshInterval"])
			},
		},
		{
			name:    "change datasource",
			method:  http.MethodPost,
			path:    "/datasource",
			signals: DatasourceSignals{Datasource: core.DataSourceRef{Name: "scratch"}},
			check: func(t *testing.T, pane map[string]any) {
				assert.Equal(t, "scratch", features.Path(pane, "datasource", "uid"))
			},
		},
		{
			name:   "url replaced",
			method: http.MethodPost,
			path:   "/url-replaced",
			check: func(t *testing.T, pane map[string]any) {
				assert.Equal(t, true, pane["urlReplaced"])
			},
		},
		{
			name:   "close",
			method: http.MethodDelete,
			path:   "/",
			check: func(t *testing.T, pane map[string]any) {
				assert.Nil(t, pane)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := setupTestClient(t)
			initLeft(t, c, InitSignals{
				Queries:     []core.DataQuery{{Expr: "SELECT 1 AS one"}},
				PanelsState: map[string]explore.PanelState{"table": {"mode": "compact"}},
			})

			rec := c.Do(tt.method, "/api/explore/left"+tt.path, tt.signals)
			require.NotContains(t, rec.Body.String(), "console.error")
			tt.check(t, leftPane(t, rec))
		})
	}
}

func TestPaneActions_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		signals any
		want    string
	}{
		{"invalid range", "/range", RangeSignals{Range: core.RawTimeRange{From: "yesterday", To: "now"}}, "console.error"},
		{"unknown datasource", "/datasource", DatasourceSignals{Datasource: core.DataSourceRef{UID: "nope"}}, "console.error"},
		{"negative width", "/resize", ResizeSignals{Width: -1}, "invalid width"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := setupTestClient(t)
			initLeft(t, c, InitSignals{})

			rec := c.Do(http.MethodPost, "/api/explore/left"+tt.path, tt.signals)
			assert.Contains(t, rec.Body.String(), tt.want)
			assert.NotNil(t, leftPane(t, rec), "the pane is still sent")
		})
	}
}

func TestUnknownPane_NotFound(t *testing.T) {
	tests := []struct {
		name   string
		method string
	}{
		{"snapshot", http.MethodGet},
		{"close", http.MethodDelete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := setupTestClient(t)
			initLeft(t, c, InitSignals{})

			rec := c.Do(tt.method, "/api/explore/right/", nil)
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Contains(t, rec.Body.String(), "pane not found")

			assert.NotNil(t, leftPane(t, c.Do(http.MethodGet, "/api/explore/left/", nil)), "other panes are untouched")
		})
	}
}

func TestRun_WithoutDatasource(t *testing.T) {
	c, _, _ := setupTestClient(t)

	pane := leftPane(t, c.Do(http.MethodPost, "/api/explore/left/split", nil))
	require.NotNil(t, pane)
	assert.Nil(t, pane["datasource"])

	rec := c.Do(http.MethodPost, "/api/explore/left/run", nil)
	assert.Contains(t, rec.Body.String(), errNoDatasource.Error())
}

func TestRun_ReportsQueryErrors(t *testing.T) {
	c, _, _ := setupTestClient(t)
	initLeft(t, c, InitSignals{Queries: []core.DataQuery{{Expr: "SELECT * FROM missing_table"}}})

	pane := waitForState(t, c, core.LoadingStateError)
	errs := features.Path(pane, "queryResponse", "errors").([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, "A", features.Path(errs[0].(map[string]any), "refId"))
}

func TestPaneSSE_StreamsChanges(t *testing.T) {
	c, _, handler := setupTestClient(t)
	initLeft(t, c, InitSignals{})

	srv := httptest.NewServer(handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/explore/left/sse", nil)
	require.NoError(t, err)
	for _, cookie := range c.Cookies() {
		req.AddCookie(cookie)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	lines.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	waitFor := func(substr string) {
		t.Helper()
		for lines.Scan() {
			line := lines.Text()
			if strings.HasPrefix(line, "data: signals ") && strings.Contains(line, substr) {
				return
			}
		}
		t.Fatalf("stream ended before %q", substr)
	}

	waitFor(`"initialized":true`)

	// Changes of another pane are not streamed; changes of this one are.
	c.Do(http.MethodPost, "/api/explore/right/resize", ResizeSignals{Width: 320})
	c.Do(http.MethodPost, "/api/explore/left/resize", ResizeSignals{Width: 640})
	waitFor(`"containerWidth":640`)
}
