package explore

import (
	"slices"

	"github.com/leapstack-labs/leapexplore/pkg/core"
)

// DefaultCacheSize bounds the per-pane response cache.
const DefaultCacheSize = 5

func emptyResponse() core.QueryResponse {
	return core.EmptyQueryResponse()
}

// queryReducer owns query rows, responses and the response cache.
func queryReducer(state PaneState, action Action) PaneState {
	switch a := action.(type) {
	case SetQueriesAction:
		state.Queries = slices.Clone(a.Queries)
		state.QueryKeys = QueryKeys(state.Queries)
		state.QueryResponse = emptyResponse()
		state.QueryRun = ""
	case ChangeQueriesAction:
		state.Queries = slices.Clone(a.Queries)
		state.QueryKeys = QueryKeys(state.Queries)
	case AddQueryRowAction:
		idx := min(max(a.Index, 0), len(state.Queries))
		state.Queries = slices.Insert(slices.Clone(state.Queries), idx, a.Query)
		state.QueryKeys = QueryKeys(state.Queries)
	case RemoveQueryRowAction:
		if a.Index < 0 || a.Index >= len(state.Queries) {
			return state
		}
		state.Queries = slices.Delete(slices.Clone(state.Queries), a.Index, a.Index+1)
		state.QueryKeys = QueryKeys(state.Queries)
	case QueryStreamUpdatedAction:
		switch {
		case a.Run == "":
			state.QueryRun = ""
		case a.Response.State == core.LoadingStateLoading:
			state.QueryRun = a.Run
		case a.Run != state.QueryRun:
			return state
		}
		state.QueryResponse = a.Response
	case AddResultsToCacheAction:
		limit := a.Limit
		if limit <= 0 {
			limit = DefaultCacheSize
		}
		cache := make([]CacheEntry, 0, limit)
		cache = append(cache, CacheEntry{Key: a.Key, Value: a.Response})
		for _, e := range state.Cache {
			if len(cache) == limit {
				break
			}
			if e.Key != a.Key {
				cache = append(cache, e)
			}
		}
		state.Cache = cache
	case ClearCacheAction:
		state.Cache = []CacheEntry{}
	}
	return state
}

// datasourceReducer owns the datasource binding.
func datasourceReducer(state PaneState, action Action) PaneState {
	if a, ok := action.(UpdateDatasourceInstanceAction); ok {
		state.Datasource = a.Datasource
		state.DatasourceMissing = a.Datasource == nil
		state.History = a.History
		state.QueryResponse = emptyResponse()
		state.QueryRun = ""
		state.Cache = []CacheEntry{}
	}
	return state
}

// timeReducer owns the time range and refresh interval.
func timeReducer(state PaneState, action Action) PaneState {
	switch a := action.(type) {
	case ChangeRangeAction:
		state.Range = a.Range
		state.AbsoluteRange = a.AbsoluteRange
	case ChangeRefreshIntervalAction:
		state.RefreshInterval = a.Interval
	}
	return state
}

// historyReducer owns the local query history.
func historyReducer(state PaneState, action Action) PaneState {
	switch a := action.(type) {
	case HistoryUpdatedAction:
		state.History = a.History
	case AppendHistoryAction:
		state.History = AddToHistory(state.History, a.Queries, a.TS)
	}
	return state
}
