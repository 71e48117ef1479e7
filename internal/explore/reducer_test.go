package explore

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapexplore/pkg/core"
)

type unknownAction struct{ paneRef }

func (unknownAction) Type() string { return "explore/unknown" }

// populatedPane returns a pane with every collection non-empty.
func populatedPane() PaneState {
	p := MakePaneState()
	p.Queries = []core.DataQuery{{RefID: "A", Key: "k1", Expr: "select 1"}}
	p.QueryKeys = QueryKeys(p.Queries)
	p.Cache = []CacheEntry{{Key: "c1", Value: core.EmptyQueryResponse()}}
	p.History = []core.HistoryItem{{TS: fixedNow, Query: p.Queries[0]}}
	p.RichHistory = []core.RichHistoryQuery{{ID: "r1"}}
	p.RichHistoryTotal = 1
	p.PanelsState = map[string]PanelState{"table": {"sort": "asc"}}
	p.ContainerWidth = 640
	return p
}

func TestPaneReducer_Initialize(t *testing.T) {
	tests := []struct {
		name        string
		prev        PaneState
		queries     []core.DataQuery
		instance    Instance
		wantMissing bool
	}{
		{
			name:        "fresh pane without datasource",
			prev:        MakePaneState(),
			queries:     []core.DataQuery{{RefID: "A", Expr: "select 1"}},
			wantMissing: true,
		},
		{
			name:     "populated pane with datasource",
			prev:     populatedPane(),
			queries:  []core.DataQuery{{RefID: "A"}, {RefID: "B"}, {RefID: "C"}},
			instance: newFakeInstance("ds1"),
		},
		{
			name:        "no queries",
			prev:        populatedPane(),
			queries:     []core.DataQuery{},
			wantMissing: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := core.TimeRange{From: fixedNow.Add(-time.Hour), To: fixedNow, Raw: core.DefaultRawRange}
			next := PaneReducer(tt.prev, Initialize(Left, InitializePayload{
				Queries:    tt.queries,
				Range:      rng,
				Datasource: tt.instance,
				History:    []core.HistoryItem{},
			}))

			assert.True(t, next.Initialized)
			assert.Len(t, next.QueryKeys, len(next.Queries))
			assert.Len(t, next.Queries, len(tt.queries))
			assert.Empty(t, next.Cache)
			assert.Equal(t, core.LoadingStateNotStarted, next.QueryResponse.State)
			assert.Equal(t, tt.wantMissing, next.DatasourceMissing)
			assert.Equal(t, rng.Absolute(), next.AbsoluteRange)
			// Untouched by initialization.
			assert.Equal(t, tt.prev.ContainerWidth, next.ContainerWidth)
			assert.Equal(t, tt.prev.PanelsState, next.PanelsState)
		})
	}
}

func TestPaneReducer_ChangeSize(t *testing.T) {
	for _, prev := range []PaneState{MakePaneState(), populatedPane()} {
		next := PaneReducer(prev, ChangeSize(Left, 800))
		assert.Equal(t, 800, next.ContainerWidth)

		next.ContainerWidth = prev.ContainerWidth
		if diff := cmp.Diff(prev, next); diff != "" {
			t.Errorf("resize changed other fields (-prev +next):\n%s", diff)
		}
	}
}

func TestPaneReducer_ChangePanelState_Merges(t *testing.T) {
	prev := populatedPane()
	next := PaneReducer(prev, ChangePanelState(Left, "graph", PanelState{"mode": "lines"}))

	want := map[string]PanelState{
		"table": {"sort": "asc"},
		"graph": {"mode": "lines"},
	}
	assert.Equal(t, want, next.PanelsState)
	assert.NotContains(t, prev.PanelsState, "graph", "previous state must not be mutated")

	next = PaneReducer(next, ChangePanelState(Left, "graph", PanelState{"mode": "bars"}))
	assert.Equal(t, PanelState{"mode": "bars"}, next.PanelsState["graph"])
	assert.Contains(t, next.PanelsState, "table")
}

func TestPaneReducer_ChangePanelsState_Replaces(t *testing.T) {
	prev := populatedPane()
	panels := map[string]PanelState{"logs": {"wrap": true}}
	next := PaneReducer(prev, ChangePanelsState(Left, panels))

	assert.Equal(t, panels, next.PanelsState)
	panels["extra"] = PanelState{}
	assert.NotContains(t, next.PanelsState, "extra", "reducer must copy the payload map")
}

func TestPaneReducer_RichHistoryUpdated(t *testing.T) {
	entries := []core.RichHistoryQuery{{ID: "a"}, {ID: "b"}}
	next := PaneReducer(populatedPane(), RichHistoryUpdated(Left, entries, 42))

	assert.Equal(t, entries, next.RichHistory)
	assert.Equal(t, 42, next.RichHistoryTotal)
}

func TestPaneReducer_RichHistoryFilters(t *testing.T) {
	filters := core.RichHistorySearchFilters{Search: "orders", Starred: true, Page: 2, PageSize: 10}
	next := PaneReducer(populatedPane(), RichHistorySearchFiltersUpdated(Left, filters))
	assert.Equal(t, filters, next.RichHistorySearchFilters)
}

func TestPaneReducer_UnknownActionIsIdentity(t *testing.T) {
	prev := populatedPane()
	prev.Datasource = newFakeInstance("ds1")

	for _, action := range []Action{unknownAction{paneRef{Left}}, RunQueries(Left), SetUser(UserState{OrgID: 2})} {
		next := PaneReducer(prev, action)

		assert.Equal(t, prev, next, action.Type())
		assert.Same(t, prev.Datasource, next.Datasource)
		assert.Equal(t, reflect.ValueOf(prev.Queries).Pointer(), reflect.ValueOf(next.Queries).Pointer())
		assert.Equal(t, reflect.ValueOf(prev.Cache).Pointer(), reflect.ValueOf(next.Cache).Pointer())
		assert.Equal(t, reflect.ValueOf(prev.History).Pointer(), reflect.ValueOf(next.History).Pointer())
		assert.Equal(t, reflect.ValueOf(prev.PanelsState).Pointer(), reflect.ValueOf(next.PanelsState).Pointer())
		assert.Equal(t, reflect.ValueOf(prev.RichHistory).Pointer(), reflect.ValueOf(next.RichHistory).Pointer())
	}
}

func TestQueryReducer_Rows(t *testing.T) {
	p := MakePaneState()
	p = PaneReducer(p, SetQueries(Left, []core.DataQuery{{RefID: "A", Key: "a"}, {RefID: "B", Key: "b"}}))
	require.Equal(t, []string{"a-0", "b-1"}, p.QueryKeys)

	p = PaneReducer(p, AddQueryRow(Left, 1, core.DataQuery{RefID: "C", Key: "c"}))
	assert.Equal(t, []string{"A", "C", "B"}, refIDs(p.Queries))
	assert.Len(t, p.QueryKeys, 3)

	p = PaneReducer(p, AddQueryRow(Left, 99, core.DataQuery{RefID: "D", Key: "d"}))
	assert.Equal(t, []string{"A", "C", "B", "D"}, refIDs(p.Queries))

	before := p.Queries
	p = PaneReducer(p, RemoveQueryRow(Left, 0))
	assert.Equal(t, []string{"C", "B", "D"}, refIDs(p.Queries))
	assert.Equal(t, []string{"A", "C", "B", "D"}, refIDs(before), "previous slice must not be mutated")

	same := PaneReducer(p, RemoveQueryRow(Left, 7))
	assert.Equal(t, p.Queries, same.Queries)

	p = PaneReducer(p, ChangeQueries(Left, []core.DataQuery{{RefID: "Z", Key: "z", Expr: "select 2"}}))
	assert.Equal(t, []string{"z-0"}, p.QueryKeys)
}

func TestQueryReducer_Cache(t *testing.T) {
	p := MakePaneState()
	resp := func(n int) core.QueryResponse {
		return core.QueryResponse{State: core.LoadingStateDone, Series: []core.Frame{{Name: string(rune('a' + n))}}}
	}

	for i := range 4 {
		p = PaneReducer(p, AddResultsToCache(Left, string(rune('a'+i)), resp(i), 3))
	}
	assert.Equal(t, []string{"d", "c", "b"}, cacheKeys(p.Cache))

	p = PaneReducer(p, AddResultsToCache(Left, "b", resp(9), 3))
	assert.Equal(t, []string{"b", "d", "c"}, cacheKeys(p.Cache))
	got, ok := p.CachedResponse("b")
	require.True(t, ok)
	assert.Equal(t, resp(9), got)

	for i := range 10 {
		p = PaneReducer(p, AddResultsToCache(Left, string(rune('k'+i)), resp(i), 0))
	}
	assert.Len(t, p.Cache, DefaultCacheSize)

	p = PaneReducer(p, ClearCache(Left))
	assert.Empty(t, p.Cache)
	_, ok = p.CachedResponse("b")
	assert.False(t, ok)
}

func TestDatasourceReducer(t *testing.T) {
	p := populatedPane()
	inst := newFakeInstance("pg")
	hist := []core.HistoryItem{{TS: fixedNow, Query: core.DataQuery{Expr: "select now()"}}}

	p = PaneReducer(p, UpdateDatasourceInstance(Left, inst, hist))
	assert.Same(t, inst, p.Datasource)
	assert.False(t, p.DatasourceMissing)
	assert.Equal(t, hist, p.History)
	assert.Empty(t, p.Cache)

	p = PaneReducer(p, UpdateDatasourceInstance(Left, nil, nil))
	assert.True(t, p.DatasourceMissing)
}

func TestTimeReducer(t *testing.T) {
	rng := core.TimeRange{From: fixedNow.Add(-time.Hour), To: fixedNow, Raw: core.RawTimeRange{From: "now-1h", To: "now"}}
	p := PaneReducer(MakePaneState(), ChangeRange(Left, rng))
	assert.Equal(t, rng, p.Range)
	assert.Equal(t, fixedNow.UnixMilli(), p.AbsoluteRange.To)

	p = PaneReducer(p, ChangeRefreshInterval(Left, "30s"))
	assert.Equal(t, "30s", p.RefreshInterval)
}

func TestHistoryReducer(t *testing.T) {
	hist := []core.HistoryItem{{TS: fixedNow}}
	p := PaneReducer(populatedPane(), HistoryUpdated(Left, hist))
	assert.Equal(t, hist, p.History)

	p = PaneReducer(p, AppendHistory(Left, []core.DataQuery{{Expr: "select 9"}}, fixedNow))
	require.Len(t, p.History, 2)
	assert.Equal(t, "select 9", p.History[0].Query.Expr)
	assert.Len(t, hist, 1)
}

func TestQueryReducer_RunTokens(t *testing.T) {
	loading := core.QueryResponse{State: core.LoadingStateLoading}
	done := func(expr string) core.QueryResponse {
		return core.QueryResponse{State: core.LoadingStateDone, Series: []core.Frame{{Rows: [][]any{{expr}}}}}
	}

	p := PaneReducer(MakePaneState(), QueryRunUpdated(Left, "r1", loading))
	assert.Equal(t, "r1", p.QueryRun)
	p = PaneReducer(p, QueryRunUpdated(Left, "r2", loading))
	assert.Equal(t, "r2", p.QueryRun)

	before := p
	p = PaneReducer(p, QueryRunUpdated(Left, "r1", done("old")))
	assert.Equal(t, before.QueryResponse, p.QueryResponse, "results of a superseded run are ignored")

	p = PaneReducer(p, QueryRunUpdated(Left, "r2", done("new")))
	assert.Equal(t, done("new"), p.QueryResponse)

	p = PaneReducer(p, QueryStreamUpdated(Left, done("cached")))
	assert.Empty(t, p.QueryRun)

	p = PaneReducer(p, QueryRunUpdated(Left, "r3", loading))
	p = PaneReducer(p, UpdateDatasourceInstance(Left, nil, nil))
	assert.Empty(t, p.QueryRun, "rebinding the datasource abandons the run")
}

func TestRootReducer(t *testing.T) {
	s := State{Panes: map[ExploreID]PaneState{}}

	s = RootReducer(s, SetUser(UserState{OrgID: 3, Login: "ana", TimeZone: "utc"}))
	assert.Equal(t, int64(3), s.User.OrgID)

	s = RootReducer(s, ChangeSize(Left, 300))
	left, ok := s.Pane(Left)
	require.True(t, ok, "pane actions create missing panes")
	assert.Equal(t, 300, left.ContainerWidth)

	before := s
	s = RootReducer(s, ChangeSize(Right, 500))
	_, ok = before.Pane(Right)
	assert.False(t, ok, "previous panes map must not be mutated")
	right, _ := s.Pane(Right)
	left, _ = s.Pane(Left)
	assert.Equal(t, 500, right.ContainerWidth)
	assert.Equal(t, 300, left.ContainerWidth, "panes are independent")

	s = RootReducer(s, SetURLReplaced(Right))
	right, _ = s.Pane(Right)
	assert.True(t, right.URLReplaced)

	s = RootReducer(s, SplitOpen(Right))
	right, _ = s.Pane(Right)
	assert.Equal(t, 0, right.ContainerWidth, "split open resets the pane")

	s = RootReducer(s, SplitClose(Right))
	_, ok = s.Pane(Right)
	assert.False(t, ok)

	same := RootReducer(s, SplitClose(Right))
	assert.Equal(t, reflect.ValueOf(s.Panes).Pointer(), reflect.ValueOf(same.Panes).Pointer())
}

func refIDs(qs []core.DataQuery) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.RefID
	}
	return out
}

func cacheKeys(entries []CacheEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Key
	}
	return out
}
