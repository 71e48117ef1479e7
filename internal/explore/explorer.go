package explore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leapexplore/internal/timerange"
	"github.com/leapstack-labs/leapexplore/pkg/core"
)

// ErrNoRichHistory is returned by rich history workflows when no store is configured.
var ErrNoRichHistory = errors.New("rich history is not configured")

// DatasourceLoader resolves a datasource reference to a live instance and its
// recent query history.
type DatasourceLoader interface {
	LoadAndInit(ctx context.Context, orgID int64, ref core.DataSourceRef) (Instance, []core.HistoryItem, error)
}

// RichHistory is the persisted query history used by Explorer and QueryRunner.
type RichHistory interface {
	Add(ctx context.Context, q core.RichHistoryQuery) (core.RichHistoryQuery, error)
	Search(ctx context.Context, orgID int64, filters core.RichHistorySearchFilters) ([]core.RichHistoryQuery, int, error)
	Star(ctx context.Context, orgID int64, id string, starred bool) (core.RichHistoryQuery, error)
	Comment(ctx context.Context, orgID int64, id, comment string) (core.RichHistoryQuery, error)
	Delete(ctx context.Context, orgID int64, id string) error
}

// ExplorerConfig holds the collaborators of an Explorer.
type ExplorerConfig struct {
	Store       Dispatcher
	Datasources DatasourceLoader
	History     RichHistory // optional

	// DefaultZone is used when the user has no time zone preference.
	DefaultZone *time.Location
	// TimeZoneOf defaults to TimeZoneOf.
	TimeZoneOf func(UserState) string
	Now        func() time.Time
	Logger     *slog.Logger
}

// Explorer runs the asynchronous pane workflows against a store.
type Explorer struct {
	store       Dispatcher
	datasources DatasourceLoader
	history     RichHistory
	defaultZone *time.Location
	timeZoneOf  func(UserState) string
	now         func() time.Time
	logger      *slog.Logger
}

// NewExplorer creates an Explorer.
func NewExplorer(cfg ExplorerConfig) *Explorer {
	e := &Explorer{
		store:       cfg.Store,
		datasources: cfg.Datasources,
		history:     cfg.History,
		defaultZone: cfg.DefaultZone,
		timeZoneOf:  cfg.TimeZoneOf,
		now:         cfg.Now,
		logger:      cfg.Logger,
	}
	if e.defaultZone == nil {
		e.defaultZone = time.Local
	}
	if e.timeZoneOf == nil {
		e.timeZoneOf = TimeZoneOf
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	return e
}

// InitOptions describes a pane to initialize.
type InitOptions struct {
	ExploreID   ExploreID
	Datasource  *core.DataSourceRef
	Queries     []core.DataQuery
	Range       core.RawTimeRange
	PanelsState map[string]PanelState
}

// InitializeExplore resolves the datasource, seeds the pane and, when a
// datasource was resolved, triggers one query run. It returns the pane state
// as of completion. Nothing is dispatched when resolution fails.
func (e *Explorer) InitializeExplore(ctx context.Context, opts InitOptions) (PaneState, error) {
	id := opts.ExploreID
	loc, err := e.location()
	if err != nil {
		return PaneState{}, err
	}
	now := e.now()
	rng, err := timerange.Resolve(opts.Range, loc, now)
	if err != nil {
		return PaneState{}, fmt.Errorf("initialize %s: %w", id, err)
	}

	var (
		instance Instance
		history  = []core.HistoryItem{}
	)
	if !opts.Datasource.IsZero() {
		orgID := e.store.State().User.OrgID
		instance, history, err = e.datasources.LoadAndInit(ctx, orgID, *opts.Datasource)
		if err != nil {
			return PaneState{}, fmt.Errorf("initialize %s: load datasource %s: %w", id, opts.Datasource, err)
		}
		if history == nil {
			history = []core.HistoryItem{}
		}
	}

	e.store.Dispatch(Initialize(id, InitializePayload{
		Queries:    EnsureQueries(opts.Queries),
		Range:      rng,
		Datasource: instance,
		History:    history,
	}))
	if opts.PanelsState != nil {
		e.store.Dispatch(ChangePanelsState(id, opts.PanelsState))
	}
	e.updateTime(id, rng.Raw, loc, now)
	if instance != nil {
		e.store.Dispatch(RunQueries(id))
	}

	e.logger.Debug("explore pane initialized", "pane", id, "datasource", opts.Datasource != nil && instance != nil)
	pane, _ := e.store.State().Pane(id)
	return pane, nil
}

// UpdateTime re-resolves the pane's raw range against the current time.
func (e *Explorer) UpdateTime(id ExploreID) error {
	pane, _ := e.store.State().Pane(id)
	return e.setRange(id, pane.Range.Raw)
}

// ChangeRange sets a new raw range and re-runs the pane's queries.
func (e *Explorer) ChangeRange(id ExploreID, raw core.RawTimeRange) error {
	if err := e.setRange(id, raw); err != nil {
		return err
	}
	e.RunQueriesNow(id)
	return nil
}

func (e *Explorer) setRange(id ExploreID, raw core.RawTimeRange) error {
	loc, err := e.location()
	if err != nil {
		return err
	}
	now := e.now()
	if _, err := timerange.Resolve(raw, loc, now); err != nil {
		return fmt.Errorf("change range of %s: %w", id, err)
	}
	e.updateTime(id, raw, loc, now)
	return nil
}

// updateTime dispatches ChangeRange for a raw range already known to parse.
func (e *Explorer) updateTime(id ExploreID, raw core.RawTimeRange, loc *time.Location, now time.Time) {
	rng, err := timerange.Resolve(raw, loc, now)
	if err != nil {
		e.logger.Warn("update time", "pane", id, "error", err)
		return
	}
	e.store.Dispatch(ChangeRange(id, rng))
}

// ChangeDatasource binds a different datasource to the pane and re-runs its queries.
func (e *Explorer) ChangeDatasource(ctx context.Context, id ExploreID, ref core.DataSourceRef) error {
	orgID := e.store.State().User.OrgID
	instance, history, err := e.datasources.LoadAndInit(ctx, orgID, ref)
	if err != nil {
		return fmt.Errorf("change datasource of %s to %s: %w", id, ref, err)
	}
	if history == nil {
		history = []core.HistoryItem{}
	}
	e.store.Dispatch(UpdateDatasourceInstance(id, instance, history))
	e.RunQueriesNow(id)
	return nil
}

// RunQueriesNow dispatches RunQueries when the pane has a datasource. It
// reports whether a run was requested.
func (e *Explorer) RunQueriesNow(id ExploreID) bool {
	pane, ok := e.store.State().Pane(id)
	if !ok || pane.Datasource == nil {
		return false
	}
	e.store.Dispatch(RunQueries(id))
	return true
}

// LoadRichHistory searches the rich history with the pane's filters.
func (e *Explorer) LoadRichHistory(ctx context.Context, id ExploreID) error {
	if e.history == nil {
		return ErrNoRichHistory
	}
	state := e.store.State()
	pane, ok := state.Pane(id)
	if !ok {
		pane = MakePaneState()
	}
	entries, total, err := e.history.Search(ctx, state.User.OrgID, pane.RichHistorySearchFilters)
	if err != nil {
		return fmt.Errorf("load rich history: %w", err)
	}
	e.store.Dispatch(RichHistoryUpdated(id, entries, total))
	return nil
}

// UpdateRichHistoryFilters stores new filters on the pane and reloads the history.
func (e *Explorer) UpdateRichHistoryFilters(ctx context.Context, id ExploreID, filters core.RichHistorySearchFilters) error {
	e.store.Dispatch(RichHistorySearchFiltersUpdated(id, filters))
	return e.LoadRichHistory(ctx, id)
}

// StarRichHistory stars or unstars an entry and reloads the pane's history.
func (e *Explorer) StarRichHistory(ctx context.Context, id ExploreID, entryID string, starred bool) error {
	if e.history == nil {
		return ErrNoRichHistory
	}
	if _, err := e.history.Star(ctx, e.store.State().User.OrgID, entryID, starred); err != nil {
		return fmt.Errorf("star rich history %s: %w", entryID, err)
	}
	return e.LoadRichHistory(ctx, id)
}

// CommentRichHistory sets the comment of an entry and reloads the pane's history.
func (e *Explorer) CommentRichHistory(ctx context.Context, id ExploreID, entryID, comment string) error {
	if e.history == nil {
		return ErrNoRichHistory
	}
	if _, err := e.history.Comment(ctx, e.store.State().User.OrgID, entryID, comment); err != nil {
		return fmt.Errorf("comment rich history %s: %w", entryID, err)
	}
	return e.LoadRichHistory(ctx, id)
}

// DeleteRichHistory removes an entry and reloads the pane's history.
func (e *Explorer) DeleteRichHistory(ctx context.Context, id ExploreID, entryID string) error {
	if e.history == nil {
		return ErrNoRichHistory
	}
	if err := e.history.Delete(ctx, e.store.State().User.OrgID, entryID); err != nil {
		return fmt.Errorf("delete rich history %s: %w", entryID, err)
	}
	return e.LoadRichHistory(ctx, id)
}

func (e *Explorer) location() (*time.Location, error) {
	loc, err := timerange.ResolveZone(e.timeZoneOf(e.store.State().User), e.defaultZone)
	if err != nil {
		return nil, fmt.Errorf("resolve time zone: %w", err)
	}
	return loc, nil
}
