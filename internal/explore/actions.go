package explore

import (
	"time"

	"github.com/leapstack-labs/leapexplore/pkg/core"
)

// Action is a request for one state transition.
type Action interface {
	Type() string
}

// PaneAction is an action addressed to a single pane.
type PaneAction interface {
	Action
	Pane() ExploreID
}

// Action type tags.
const (
	TypeChangeSize                      = "explore/changeSize"
	TypeChangePanelState                = "explore/changePanelState"
	TypeChangePanelsState               = "explore/changePanelsState"
	TypeInitializeExplore               = "explore/initializeExplore"
	TypeRichHistoryUpdated              = "explore/richHistoryUpdated"
	TypeRichHistorySearchFiltersUpdated = "explore/richHistorySearchFiltersUpdated"
	TypeSetQueries                      = "explore/setQueries"
	TypeAddQueryRow                     = "explore/addQueryRow"
	TypeRemoveQueryRow                  = "explore/removeQueryRow"
	TypeChangeQueries                   = "explore/changeQueries"
	TypeQueryStreamUpdated              = "explore/queryStreamUpdated"
	TypeAddResultsToCache               = "explore/addResultsToCache"
	TypeClearCache                      = "explore/clearCache"
	TypeUpdateDatasourceInstance        = "explore/updateDatasourceInstance"
	TypeChangeRange                     = "explore/changeRange"
	TypeChangeRefreshInterval           = "explore/changeRefreshInterval"
	TypeHistoryUpdated                  = "explore/historyUpdated"
	TypeAppendHistory                   = "explore/appendHistory"
	TypeRunQueries                      = "explore/runQueries"
	TypeSetURLReplaced                  = "explore/setUrlReplaced"
	TypeSplitOpen                       = "explore/splitOpen"
	TypeSplitClose                      = "explore/splitClose"
	TypeSetUser                         = "explore/setUser"
)

type paneRef struct {
	ExploreID ExploreID
}

func (p paneRef) Pane() ExploreID { return p.ExploreID }

// ChangeSizeAction records the pane container width.
type ChangeSizeAction struct {
	paneRef
	Width int
}

func (ChangeSizeAction) Type() string { return TypeChangeSize }

// ChangeSize builds a ChangeSizeAction.
func ChangeSize(id ExploreID, width int) ChangeSizeAction {
	return ChangeSizeAction{paneRef{id}, width}
}

// ChangePanelStateAction replaces the state of one panel, keeping the others.
type ChangePanelStateAction struct {
	paneRef
	Panel string
	State PanelState
}

func (ChangePanelStateAction) Type() string { return TypeChangePanelState }

// ChangePanelState builds a ChangePanelStateAction.
func ChangePanelState(id ExploreID, panel string, state PanelState) ChangePanelStateAction {
	return ChangePanelStateAction{paneRef{id}, panel, state}
}

// ChangePanelsStateAction replaces the whole panel layout.
type ChangePanelsStateAction struct {
	paneRef
	PanelsState map[string]PanelState
}

func (ChangePanelsStateAction) Type() string { return TypeChangePanelsState }

// ChangePanelsState builds a ChangePanelsStateAction.
func ChangePanelsState(id ExploreID, panels map[string]PanelState) ChangePanelsStateAction {
	return ChangePanelsStateAction{paneRef{id}, panels}
}

// InitializePayload carries the outcome of the initialization workflow.
type InitializePayload struct {
	Queries    []core.DataQuery
	Range      core.TimeRange
	Datasource Instance
	History    []core.HistoryItem
}

// InitializeExploreAction seeds a pane.
type InitializeExploreAction struct {
	paneRef
	InitializePayload
}

func (InitializeExploreAction) Type() string { return TypeInitializeExplore }

// Initialize builds an InitializeExploreAction.
func Initialize(id ExploreID, payload InitializePayload) InitializeExploreAction {
	return InitializeExploreAction{paneRef{id}, payload}
}

// RichHistoryUpdatedAction replaces the loaded rich history page.
type RichHistoryUpdatedAction struct {
	paneRef
	RichHistory []core.RichHistoryQuery
	Total       int
}

func (RichHistoryUpdatedAction) Type() string { return TypeRichHistoryUpdated }

// RichHistoryUpdated builds a RichHistoryUpdatedAction.
func RichHistoryUpdated(id ExploreID, entries []core.RichHistoryQuery, total int) RichHistoryUpdatedAction {
	return RichHistoryUpdatedAction{paneRef{id}, entries, total}
}

// RichHistorySearchFiltersUpdatedAction replaces the rich history filters.
type RichHistorySearchFiltersUpdatedAction struct {
	paneRef
	Filters core.RichHistorySearchFilters
}

func (RichHistorySearchFiltersUpdatedAction) Type() string {
	return TypeRichHistorySearchFiltersUpdated
}

// RichHistorySearchFiltersUpdated builds a RichHistorySearchFiltersUpdatedAction.
func RichHistorySearchFiltersUpdated(id ExploreID, filters core.RichHistorySearchFilters) RichHistorySearchFiltersUpdatedAction {
	return RichHistorySearchFiltersUpdatedAction{paneRef{id}, filters}
}

// SetQueriesAction replaces all query rows and resets the response.
type SetQueriesAction struct {
	paneRef
	Queries []core.DataQuery
}

func (SetQueriesAction) Type() string { return TypeSetQueries }

// SetQueries builds a SetQueriesAction.
func SetQueries(id ExploreID, queries []core.DataQuery) SetQueriesAction {
	return SetQueriesAction{paneRef{id}, queries}
}

// AddQueryRowAction inserts a query row at Index.
type AddQueryRowAction struct {
	paneRef
	Index int
	Query core.DataQuery
}

func (AddQueryRowAction) Type() string { return TypeAddQueryRow }

// AddQueryRow builds an AddQueryRowAction.
func AddQueryRow(id ExploreID, index int, query core.DataQuery) AddQueryRowAction {
	return AddQueryRowAction{paneRef{id}, index, query}
}

// RemoveQueryRowAction removes the query row at Index.
type RemoveQueryRowAction struct {
	paneRef
	Index int
}

func (RemoveQueryRowAction) Type() string { return TypeRemoveQueryRow }

// RemoveQueryRow builds a RemoveQueryRowAction.
func RemoveQueryRow(id ExploreID, index int) RemoveQueryRowAction {
	return RemoveQueryRowAction{paneRef{id}, index}
}

// ChangeQueriesAction edits query rows without resetting results.
type ChangeQueriesAction struct {
	paneRef
	Queries []core.DataQuery
}

func (ChangeQueriesAction) Type() string { return TypeChangeQueries }

// ChangeQueries builds a ChangeQueriesAction.
func ChangeQueries(id ExploreID, queries []core.DataQuery) ChangeQueriesAction {
	return ChangeQueriesAction{paneRef{id}, queries}
}

// QueryStreamUpdatedAction publishes a (partial or final) query response.
// Run is empty for responses not tied to a running execution, such as cache
// hits. A Loading response with a Run makes that run the pane's current one;
// later responses of any other run are ignored.
type QueryStreamUpdatedAction struct {
	paneRef
	Response core.QueryResponse
	Run      string
}

func (QueryStreamUpdatedAction) Type() string { return TypeQueryStreamUpdated }

// QueryStreamUpdated builds a QueryStreamUpdatedAction.
func QueryStreamUpdated(id ExploreID, response core.QueryResponse) QueryStreamUpdatedAction {
	return QueryStreamUpdatedAction{paneRef: paneRef{id}, Response: response}
}

// QueryRunUpdated builds a QueryStreamUpdatedAction for the execution run.
func QueryRunUpdated(id ExploreID, run string, response core.QueryResponse) QueryStreamUpdatedAction {
	return QueryStreamUpdatedAction{paneRef: paneRef{id}, Response: response, Run: run}
}

// AddResultsToCacheAction stores a response under Key, keeping at most Limit entries.
type AddResultsToCacheAction struct {
	paneRef
	Key      string
	Response core.QueryResponse
	Limit    int
}

func (AddResultsToCacheAction) Type() string { return TypeAddResultsToCache }

// AddResultsToCache builds an AddResultsToCacheAction. A non-positive limit
// uses DefaultCacheSize.
func AddResultsToCache(id ExploreID, key string, response core.QueryResponse, limit int) AddResultsToCacheAction {
	return AddResultsToCacheAction{paneRef{id}, key, response, limit}
}

// ClearCacheAction drops every cached response.
type ClearCacheAction struct {
	paneRef
}

func (ClearCacheAction) Type() string { return TypeClearCache }

// ClearCache builds a ClearCacheAction.
func ClearCache(id ExploreID) ClearCacheAction {
	return ClearCacheAction{paneRef{id}}
}

// UpdateDatasourceInstanceAction binds a new datasource to the pane.
type UpdateDatasourceInstanceAction struct {
	paneRef
	Datasource Instance
	History    []core.HistoryItem
}

func (UpdateDatasourceInstanceAction) Type() string { return TypeUpdateDatasourceInstance }

// UpdateDatasourceInstance builds an UpdateDatasourceInstanceAction.
func UpdateDatasourceInstance(id ExploreID, instance Instance, history []core.HistoryItem) UpdateDatasourceInstanceAction {
	return UpdateDatasourceInstanceAction{paneRef{id}, instance, history}
}

// ChangeRangeAction sets the resolved time range.
type ChangeRangeAction struct {
	paneRef
	Range         core.TimeRange
	AbsoluteRange core.AbsoluteRange
}

func (ChangeRangeAction) Type() string { return TypeChangeRange }

// ChangeRange builds a ChangeRangeAction.
func ChangeRange(id ExploreID, tr core.TimeRange) ChangeRangeAction {
	return ChangeRangeAction{paneRef{id}, tr, tr.Absolute()}
}

// ChangeRefreshIntervalAction sets the auto-refresh interval ("" disables it).
type ChangeRefreshIntervalAction struct {
	paneRef
	Interval string
}

func (ChangeRefreshIntervalAction) Type() string { return TypeChangeRefreshInterval }

// ChangeRefreshInterval builds a ChangeRefreshIntervalAction.
func ChangeRefreshInterval(id ExploreID, interval string) ChangeRefreshIntervalAction {
	return ChangeRefreshIntervalAction{paneRef{id}, interval}
}

// HistoryUpdatedAction replaces the local query history.
type HistoryUpdatedAction struct {
	paneRef
	History []core.HistoryItem
}

func (HistoryUpdatedAction) Type() string { return TypeHistoryUpdated }

// HistoryUpdated builds a HistoryUpdatedAction.
func HistoryUpdated(id ExploreID, history []core.HistoryItem) HistoryUpdatedAction {
	return HistoryUpdatedAction{paneRef{id}, history}
}

// AppendHistoryAction prepends executed queries to the local history.
type AppendHistoryAction struct {
	paneRef
	Queries []core.DataQuery
	TS      time.Time
}

func (AppendHistoryAction) Type() string { return TypeAppendHistory }

// AppendHistory builds an AppendHistoryAction.
func AppendHistory(id ExploreID, queries []core.DataQuery, ts time.Time) AppendHistoryAction {
	return AppendHistoryAction{paneRef{id}, queries, ts}
}

// RunQueriesAction asks the query runner effect to execute the pane's queries.
// Reducers ignore it.
type RunQueriesAction struct {
	paneRef
}

func (RunQueriesAction) Type() string { return TypeRunQueries }

// RunQueries builds a RunQueriesAction.
func RunQueries(id ExploreID) RunQueriesAction {
	return RunQueriesAction{paneRef{id}}
}

// SetURLReplacedAction marks that the pane's URL state was replaced rather
// than pushed, so URL synchronization does not add a navigation entry.
type SetURLReplacedAction struct {
	paneRef
}

func (SetURLReplacedAction) Type() string { return TypeSetURLReplaced }

// SetURLReplaced builds a SetURLReplacedAction.
func SetURLReplaced(id ExploreID) SetURLReplacedAction {
	return SetURLReplacedAction{paneRef{id}}
}

// SplitOpenAction opens a fresh pane.
type SplitOpenAction struct {
	paneRef
}

func (SplitOpenAction) Type() string { return TypeSplitOpen }

// SplitOpen builds a SplitOpenAction.
func SplitOpen(id ExploreID) SplitOpenAction {
	return SplitOpenAction{paneRef{id}}
}

// SplitCloseAction removes a pane.
type SplitCloseAction struct {
	paneRef
}

func (SplitCloseAction) Type() string { return TypeSplitClose }

// SplitClose builds a SplitCloseAction.
func SplitClose(id ExploreID) SplitCloseAction {
	return SplitCloseAction{paneRef{id}}
}

// SetUserAction replaces the user profile.
type SetUserAction struct {
	User UserState
}

func (SetUserAction) Type() string { return TypeSetUser }

// SetUser builds a SetUserAction.
func SetUser(user UserState) SetUserAction {
	return SetUserAction{user}
}
