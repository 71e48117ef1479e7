// Package explore holds the state of exploration panes.
//
// Each pane (left, right, or any other ExploreID) owns a PaneState value:
// time range, query rows, the bound datasource instance, results cache,
// query history and panel layout. State only changes by dispatching an
// Action to a Store, which applies RootReducer under a single-writer lock
// and publishes the id of the changed pane to subscribers. Side effects
// such as datasource resolution and query execution live in Explorer
// workflows and Store effects, never in reducers.
package explore

import "github.com/leapstack-labs/leapexplore/pkg/core"

// ExploreID identifies one pane.
type ExploreID string

// Well-known pane ids of a split view.
const (
	Left  ExploreID = "left"
	Right ExploreID = "right"
)

// Instance is a live, resolved handle to a datasource.
type Instance = core.Instance

// PanelState is the layout state of one result panel (e.g. "graph", "table").
type PanelState map[string]any

// CacheEntry is one cached query response.
type CacheEntry struct {
	Key   string             `json:"key"`
	Value core.QueryResponse `json:"value"`
}

// PaneState is the state of a single exploration pane.
// Values are never mutated in place; reducers return modified copies.
type PaneState struct {
	Range           core.TimeRange
	AbsoluteRange   core.AbsoluteRange
	RefreshInterval string

	Queries   []core.DataQuery
	QueryKeys []string

	Datasource        Instance
	DatasourceMissing bool

	QueryResponse core.QueryResponse
	// QueryRun identifies the execution whose results the pane accepts.
	QueryRun string
	Cache    []CacheEntry

	History                  []core.HistoryItem
	RichHistory              []core.RichHistoryQuery
	RichHistoryTotal         int
	RichHistorySearchFilters core.RichHistorySearchFilters

	PanelsState    map[string]PanelState
	ContainerWidth int
	Initialized    bool
	URLReplaced    bool
}

// MakePaneState returns the state of a freshly opened pane.
func MakePaneState() PaneState {
	return PaneState{
		Range:                    core.TimeRange{Raw: core.DefaultRawRange},
		Queries:                  []core.DataQuery{},
		QueryKeys:                []string{},
		QueryResponse:            core.EmptyQueryResponse(),
		Cache:                    []CacheEntry{},
		History:                  []core.HistoryItem{},
		RichHistory:              []core.RichHistoryQuery{},
		RichHistorySearchFilters: core.DefaultRichHistorySearchFilters(),
		PanelsState:              map[string]PanelState{},
	}
}

// CachedResponse looks up a cached response by key.
func (p PaneState) CachedResponse(key string) (core.QueryResponse, bool) {
	for _, e := range p.Cache {
		if e.Key == key {
			return e.Value, true
		}
	}
	return core.QueryResponse{}, false
}

// UserState is the profile of the user owning a store.
type UserState struct {
	OrgID    int64  `json:"orgId"`
	Login    string `json:"login"`
	TimeZone string `json:"timeZone"`
}

// TimeZoneOf returns the time zone preference of user, "browser" when unset.
func TimeZoneOf(user UserState) string {
	if user.TimeZone == "" {
		return "browser"
	}
	return user.TimeZone
}

// State is the whole explore state held by a Store.
type State struct {
	User  UserState
	Panes map[ExploreID]PaneState
}

// Pane returns the state of pane id.
func (s State) Pane(id ExploreID) (PaneState, bool) {
	p, ok := s.Panes[id]
	return p, ok
}

// PaneSnapshot is the JSON-friendly view of a pane published to clients.
type PaneSnapshot struct {
	ExploreID                ExploreID                     `json:"exploreId"`
	Range                    core.TimeRange                `json:"range"`
	AbsoluteRange            core.AbsoluteRange            `json:"absoluteRange"`
	RefreshInterval          string                        `json:"refreshInterval,omitempty"`
	Queries                  []core.DataQuery              `json:"queries"`
	QueryKeys                []string                      `json:"queryKeys"`
	Datasource               *core.DataSourceRef           `json:"datasource,omitempty"`
	DatasourceMissing        bool                          `json:"datasourceMissing"`
	QueryResponse            core.QueryResponse            `json:"queryResponse"`
	History                  []core.HistoryItem            `json:"history"`
	RichHistory              []core.RichHistoryQuery       `json:"richHistory"`
	RichHistoryTotal         int                           `json:"richHistoryTotal"`
	RichHistorySearchFilters core.RichHistorySearchFilters `json:"richHistorySearchFilters"`
	PanelsState              map[string]PanelState         `json:"panelsState"`
	ContainerWidth           int                           `json:"containerWidth"`
	Initialized              bool                          `json:"initialized"`
	URLReplaced              bool                          `json:"urlReplaced"`
}

// Snapshot converts the pane into its published form.
func (p PaneState) Snapshot(id ExploreID) PaneSnapshot {
	snap := PaneSnapshot{
		ExploreID:                id,
		Range:                    p.Range,
		AbsoluteRange:            p.AbsoluteRange,
		RefreshInterval:          p.RefreshInterval,
		Queries:                  p.Queries,
		QueryKeys:                p.QueryKeys,
		DatasourceMissing:        p.DatasourceMissing,
		QueryResponse:            p.QueryResponse,
		History:                  p.History,
		RichHistory:              p.RichHistory,
		RichHistoryTotal:         p.RichHistoryTotal,
		RichHistorySearchFilters: p.RichHistorySearchFilters,
		PanelsState:              p.PanelsState,
		ContainerWidth:           p.ContainerWidth,
		Initialized:              p.Initialized,
		URLReplaced:              p.URLReplaced,
	}
	if p.Datasource != nil {
		snap.Datasource = &core.DataSourceRef{
			UID:  p.Datasource.UID(),
			Name: p.Datasource.Name(),
			Type: p.Datasource.Type(),
		}
	}
	return snap
}
