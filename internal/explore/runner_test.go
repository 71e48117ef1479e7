package explore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapexplore/internal/testutil"
	"github.com/leapstack-labs/leapexplore/pkg/core"
)

func newRunnerStore(t *testing.T, history RichHistory) *Store {
	t.Helper()
	logger := testutil.NewTestLogger(t)
	s := NewStore(State{User: UserState{OrgID: 4}}, logger)
	s.Use(QueryRunner(RunnerConfig{
		History: history,
		Now:     func() time.Time { return fixedNow },
		Logger:  logger,
	}))
	t.Cleanup(s.Close)
	return s
}

func initPane(t *testing.T, s *Store, inst Instance, queries ...core.DataQuery) {
	t.Helper()
	e := NewExplorer(ExplorerConfig{
		Store:       s,
		Datasources: &fakeLoader{instance: inst},
		DefaultZone: time.UTC,
		Now:         func() time.Time { return fixedNow },
	})
	_, err := e.InitializeExplore(context.Background(), InitOptions{
		ExploreID:  Left,
		Datasource: &core.DataSourceRef{UID: inst.UID()},
		Queries:    queries,
	})
	require.NoError(t, err)
	s.Wait()
}

func TestQueryRunner_RunsAndCaches(t *testing.T) {
	hist := &fakeHistory{}
	s := newRunnerStore(t, hist)
	inst := newFakeInstance("duck")

	initPane(t, s, inst,
		core.DataQuery{RefID: "A", Expr: "select 1"},
		core.DataQuery{RefID: "B", Expr: "select 2", Hide: true},
		core.DataQuery{RefID: "C", Expr: "   "},
	)

	pane, _ := s.Pane(Left)
	assert.Equal(t, core.LoadingStateDone, pane.QueryResponse.State)
	require.Len(t, pane.QueryResponse.Series, 1)
	assert.Equal(t, "A", pane.QueryResponse.Series[0].RefID)
	assert.Equal(t, [][]any{{"select 1"}}, pane.QueryResponse.Series[0].Rows)
	assert.Len(t, pane.Cache, 1)
	require.Len(t, pane.History, 1)
	assert.Equal(t, "select 1", pane.History[0].Query.Expr)
	assert.Equal(t, []string{"select 1"}, inst.Calls())

	require.Equal(t, 1, hist.Len())
	assert.Equal(t, int64(4), hist.entries[0].OrgID)
	assert.Equal(t, "duck", hist.entries[0].DatasourceUID)

	// Same range and queries: served from cache without hitting the instance.
	s.Dispatch(RunQueries(Left))
	s.Wait()
	assert.Len(t, inst.Calls(), 1)
	pane, _ = s.Pane(Left)
	assert.Equal(t, core.LoadingStateDone, pane.QueryResponse.State)
	assert.Equal(t, 1, hist.Len())
}

func TestQueryRunner_Errors(t *testing.T) {
	s := newRunnerStore(t, nil)
	inst := newFakeInstance("duck")
	inst.err = errors.New("syntax error at or near \"selec\"")

	initPane(t, s, inst, core.DataQuery{RefID: "A", Expr: "selec 1"})

	pane, _ := s.Pane(Left)
	assert.Equal(t, core.LoadingStateError, pane.QueryResponse.State)
	require.Len(t, pane.QueryResponse.Errors, 1)
	assert.Equal(t, "A", pane.QueryResponse.Errors[0].RefID)
	assert.Contains(t, pane.QueryResponse.Errors[0].Message, "syntax error")
	assert.Empty(t, pane.Cache, "failed runs are not cached")
	assert.Empty(t, pane.History)
}

func TestQueryRunner_MarksLoading(t *testing.T) {
	s := newRunnerStore(t, nil)
	inst := newFakeInstance("duck")
	inst.block = make(chan struct{})

	ch := s.Subscribe()
	e := NewExplorer(ExplorerConfig{Store: s, Datasources: &fakeLoader{instance: inst}, DefaultZone: time.UTC})
	_, err := e.InitializeExplore(context.Background(), InitOptions{
		ExploreID:  Left,
		Datasource: &core.DataSourceRef{UID: "duck"},
		Queries:    []core.DataQuery{{RefID: "A", Expr: "select 1"}},
	})
	require.NoError(t, err)

	pane, _ := s.Pane(Left)
	assert.Equal(t, core.LoadingStateLoading, pane.QueryResponse.State)

	close(inst.block)
	s.Wait()
	pane, _ = s.Pane(Left)
	assert.Equal(t, core.LoadingStateDone, pane.QueryResponse.State)
	assert.NotEmpty(t, ch)
}

func TestQueryRunner_DropsStaleResults(t *testing.T) {
	s := newRunnerStore(t, nil)
	slow := newFakeInstance("slow")
	slow.block = make(chan struct{})

	e := NewExplorer(ExplorerConfig{Store: s, Datasources: &fakeLoader{instance: slow}, DefaultZone: time.UTC})
	_, err := e.InitializeExplore(context.Background(), InitOptions{
		ExploreID:  Left,
		Datasource: &core.DataSourceRef{UID: "slow"},
		Queries:    []core.DataQuery{{RefID: "A", Expr: "select 1"}},
	})
	require.NoError(t, err)

	s.Dispatch(UpdateDatasourceInstance(Left, nil, nil))
	close(slow.block)
	s.Wait()

	pane, _ := s.Pane(Left)
	assert.Equal(t, core.LoadingStateNotStarted, pane.QueryResponse.State)
	assert.Empty(t, pane.Cache)
}

func TestQueryRunner_OverlappingRuns(t *testing.T) {
	hist := &fakeHistory{}
	s := newRunnerStore(t, hist)
	inst := newFakeInstance("duck")
	oldGate := make(chan struct{})
	inst.gates = map[string]chan struct{}{"select 'old'": oldGate}

	e := NewExplorer(ExplorerConfig{Store: s, Datasources: &fakeLoader{instance: inst}, DefaultZone: time.UTC})
	_, err := e.InitializeExplore(context.Background(), InitOptions{
		ExploreID:  Left,
		Datasource: &core.DataSourceRef{UID: "duck"},
		Queries:    []core.DataQuery{{RefID: "A", Expr: "select 'old'"}},
	})
	require.NoError(t, err)

	s.Dispatch(ChangeQueries(Left, []core.DataQuery{{RefID: "A", Expr: "select 'new'"}}))
	s.Dispatch(RunQueries(Left))
	require.Eventually(t, func() bool {
		pane, _ := s.Pane(Left)
		return pane.QueryResponse.State == core.LoadingStateDone
	}, 2*time.Second, 5*time.Millisecond)

	close(oldGate)
	s.Wait()

	pane, _ := s.Pane(Left)
	require.Len(t, pane.QueryResponse.Series, 1)
	assert.Equal(t, [][]any{{"select 'new'"}}, pane.QueryResponse.Series[0].Rows)
	require.Len(t, pane.Cache, 1, "superseded runs are not cached")
	require.Len(t, pane.History, 1)
	assert.Equal(t, "select 'new'", pane.History[0].Query.Expr)
	assert.Equal(t, 1, hist.Len())
}

func TestQueryRunner_CacheHitSupersedesRun(t *testing.T) {
	s := newRunnerStore(t, nil)
	inst := newFakeInstance("duck")
	initPane(t, s, inst, core.DataQuery{RefID: "A", Expr: "select 1"})

	gate := make(chan struct{})
	inst.gates = map[string]chan struct{}{"select 2": gate}
	s.Dispatch(ChangeQueries(Left, []core.DataQuery{{RefID: "A", Expr: "select 2"}}))
	s.Dispatch(RunQueries(Left))

	// Back to the first query: served from the cache while "select 2" is still running.
	s.Dispatch(ChangeQueries(Left, []core.DataQuery{{RefID: "A", Expr: "select 1"}}))
	s.Dispatch(RunQueries(Left))
	close(gate)
	s.Wait()

	pane, _ := s.Pane(Left)
	require.Len(t, pane.QueryResponse.Series, 1)
	assert.Equal(t, [][]any{{"select 1"}}, pane.QueryResponse.Series[0].Rows)
	assert.Empty(t, pane.QueryRun)
}

func TestQueryRunner_CloseCancelsRun(t *testing.T) {
	logger := testutil.NewTestLogger(t)
	s := NewStore(State{}, logger)
	s.Use(QueryRunner(RunnerConfig{Logger: logger}))
	inst := newFakeInstance("duck")
	inst.block = make(chan struct{})

	e := NewExplorer(ExplorerConfig{Store: s, Datasources: &fakeLoader{instance: inst}, DefaultZone: time.UTC})
	_, err := e.InitializeExplore(context.Background(), InitOptions{
		ExploreID:  Left,
		Datasource: &core.DataSourceRef{UID: "duck"},
		Queries:    []core.DataQuery{{RefID: "A", Expr: "select 1"}},
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not cancel the running query")
	}
}

func TestAddToHistory(t *testing.T) {
	older := fixedNow.Add(-time.Hour)
	history := []core.HistoryItem{
		{TS: older, Query: core.DataQuery{Expr: "select 1"}},
		{TS: older, Query: core.DataQuery{Expr: "select 2"}},
	}
	got := AddToHistory(history, []core.DataQuery{{Expr: "select 2 "}, {Expr: "select 3"}}, fixedNow)

	exprs := make([]string, len(got))
	for i, h := range got {
		exprs[i] = h.Query.Expr
	}
	assert.Equal(t, []string{"select 2 ", "select 3", "select 1"}, exprs)
	assert.Equal(t, fixedNow, got[0].TS)
	assert.Len(t, history, 2, "input must not be modified")

	var many []core.HistoryItem
	for i := range MaxHistoryItems + 10 {
		many = append(many, core.HistoryItem{Query: core.DataQuery{Expr: fmt.Sprintf("select %d", i+10)}})
	}
	assert.Len(t, AddToHistory(many, []core.DataQuery{{Expr: "x"}}, fixedNow), MaxHistoryItems)
}
