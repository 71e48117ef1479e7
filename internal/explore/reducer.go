package explore

import "maps"

// Reducer is a pure pane transition. It must return its input unchanged for
// action types it does not handle.
type Reducer func(state PaneState, action Action) PaneState

// subReducers run in order before the pane's own handling. Each owns a
// disjoint set of action types.
var subReducers = []Reducer{
	queryReducer,
	datasourceReducer,
	timeReducer,
	historyReducer,
}

// PaneReducer computes the next state of one pane.
func PaneReducer(state PaneState, action Action) PaneState {
	for _, r := range subReducers {
		state = r(state, action)
	}

	switch a := action.(type) {
	case RichHistoryUpdatedAction:
		state.RichHistory = a.RichHistory
		state.RichHistoryTotal = a.Total
	case RichHistorySearchFiltersUpdatedAction:
		state.RichHistorySearchFilters = a.Filters
	case ChangeSizeAction:
		state.ContainerWidth = a.Width
	case ChangePanelStateAction:
		panels := make(map[string]PanelState, len(state.PanelsState)+1)
		maps.Copy(panels, state.PanelsState)
		panels[a.Panel] = a.State
		state.PanelsState = panels
	case ChangePanelsStateAction:
		panels := make(map[string]PanelState, len(a.PanelsState))
		maps.Copy(panels, a.PanelsState)
		state.PanelsState = panels
	case InitializeExploreAction:
		state.Range = a.Range
		state.AbsoluteRange = a.Range.Absolute()
		state.Queries = a.Queries
		state.QueryKeys = QueryKeys(a.Queries)
		state.Datasource = a.Datasource
		state.DatasourceMissing = a.Datasource == nil
		state.History = a.History
		state.Initialized = true
		state.QueryResponse = emptyResponse()
		state.QueryRun = ""
		state.Cache = []CacheEntry{}
	}
	return state
}

// RootReducer routes pane actions to their pane and handles store-wide actions.
// A pane that receives an action before being opened starts from MakePaneState.
func RootReducer(state State, action Action) State {
	switch a := action.(type) {
	case SetUserAction:
		state.User = a.User
		return state
	case SplitOpenAction:
		state.Panes = withPane(state.Panes, a.ExploreID, MakePaneState())
		return state
	case SplitCloseAction:
		if _, ok := state.Panes[a.ExploreID]; !ok {
			return state
		}
		panes := maps.Clone(state.Panes)
		delete(panes, a.ExploreID)
		state.Panes = panes
		return state
	case SetURLReplacedAction:
		p, ok := state.Panes[a.ExploreID]
		if !ok {
			p = MakePaneState()
		}
		p.URLReplaced = true
		state.Panes = withPane(state.Panes, a.ExploreID, p)
		return state
	}

	pa, ok := action.(PaneAction)
	if !ok {
		return state
	}
	id := pa.Pane()
	prev, ok := state.Panes[id]
	if !ok {
		prev = MakePaneState()
	}
	state.Panes = withPane(state.Panes, id, PaneReducer(prev, action))
	return state
}

func withPane(panes map[ExploreID]PaneState, id ExploreID, p PaneState) map[ExploreID]PaneState {
	next := make(map[ExploreID]PaneState, len(panes)+1)
	maps.Copy(next, panes)
	next[id] = p
	return next
}
