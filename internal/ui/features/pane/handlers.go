package pane

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/leapexplore/internal/explore"
	"github.com/leapstack-labs/leapexplore/internal/ui/features/common"
	"github.com/leapstack-labs/leapexplore/internal/ui/hub"
	"github.com/leapstack-labs/leapexplore/pkg/core"
)

// errNoDatasource is reported when running a pane without a datasource.
var errNoDatasource = errors.New("pane has no datasource")

var errPaneNotFound = errors.New("pane not found")

// PreferredSource picks the datasource of a pane opened without one.
type PreferredSource interface {
	PreferredRef(ctx context.Context, orgID int64) (core.DataSourceRef, error)
}

// Handlers provides HTTP handlers for explore panes.
type Handlers struct {
	sessions    common.Sessions
	datasources PreferredSource
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sessions common.Sessions, datasources PreferredSource) *Handlers {
	return &Handlers{
		sessions:    sessions,
		datasources: datasources,
	}
}

func paneID(r *http.Request) explore.ExploreID {
	return explore.ExploreID(chi.URLParam(r, "paneID"))
}

// PaneSSE is the long-lived SSE endpoint of one pane. It sends the current
// snapshot, then a new one on every change of the pane.
func (h *Handlers) PaneSSE(w http.ResponseWriter, r *http.Request) {
	_, session, err := h.sessions.Load(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	id := paneID(r)
	detach := h.sessions.Hub.Attach(session)
	defer detach()

	updates := session.Store.Subscribe()
	defer session.Store.Unsubscribe(updates)

	sse := datastar.NewSSE(w, r)
	if err := patchPane(sse, session, id); err != nil {
		_ = sse.ConsoleError(err)
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case changed, ok := <-updates:
			if !ok {
				// Store closed
				return
			}
			if changed != id && changed != "" {
				continue
			}
			if err := patchPane(sse, session, id); err != nil {
				_ = sse.ConsoleError(err)
			}
		}
	}
}

// Snapshot sends the current pane snapshot once, or 404 for an unknown pane.
func (h *Handlers) Snapshot(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, nil, func(_ context.Context, s *hub.Session, id explore.ExploreID) error {
		if _, ok := s.Store.Pane(id); !ok {
			return errPaneNotFound
		}
		return nil
	})
}

// Init initializes the pane, resolving the preferred datasource when the
// request names none.
func (h *Handlers) Init(w http.ResponseWriter, r *http.Request) {
	var signals InitSignals
	h.handle(w, r, &signals, func(ctx context.Context, s *hub.Session, id explore.ExploreID) error {
		ref := signals.Datasource
		if ref.IsZero() && h.datasources != nil {
			preferred, err := h.datasources.PreferredRef(ctx, s.Store.State().User.OrgID)
			if err == nil {
				ref = &preferred
			}
		}
		_, err := s.Explorer.InitializeExplore(ctx, explore.InitOptions{
			ExploreID:   id,
			Datasource:  ref,
			Queries:     signals.Queries,
			Range:       signals.Range,
			PanelsState: signals.PanelsState,
		})
		return err
	})
}

// Split opens a fresh pane.
func (h *Handlers) Split(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, nil, func(_ context.Context, s *hub.Session, id explore.ExploreID) error {
		s.Store.Dispatch(explore.SplitOpen(id))
		return nil
	})
}

// Resize records the container width.
func (h *Handlers) Resize(w http.ResponseWriter, r *http.Request) {
	var signals ResizeSignals
	h.handle(w, r, &signals, func(_ context.Context, s *hub.Session, id explore.ExploreID) error {
		if signals.Width < 0 {
			return fmt.Errorf("invalid width %d", signals.Width)
		}
		s.Store.Dispatch(explore.ChangeSize(id, signals.Width))
		return nil
	})
}

// Panels merges one panel state or replaces all of them.
func (h *Handlers) Panels(w http.ResponseWriter, r *http.Request) {
	var signals PanelsSignals
	h.handle(w, r, &signals, func(_ context.Context, s *hub.Session, id explore.ExploreID) error {
		if signals.Panel != "" {
			s.Store.Dispatch(explore.ChangePanelState(id, signals.Panel, signals.State))
			return nil
		}
		panels := signals.Panels
		if panels == nil {
			panels = map[string]explore.PanelState{}
		}
		s.Store.Dispatch(explore.ChangePanelsState(id, panels))
		return nil
	})
}

// Queries replaces the query rows without running them.
func (h *Handlers) Queries(w http.ResponseWriter, r *http.Request) {
	var signals QueriesSignals
	h.handle(w, r, &signals, func(_ context.Context, s *hub.Session, id explore.ExploreID) error {
		s.Store.Dispatch(explore.ChangeQueries(id, explore.EnsureQueries(signals.Queries)))
		return nil
	})
}

// AddRow inserts a query row.
func (h *Handlers) AddRow(w http.ResponseWriter, r *http.Request) {
	var signals RowSignals
	h.handle(w, r, &signals, func(_ context.Context, s *hub.Session, id explore.ExploreID) error {
		pane, _ := s.Store.Pane(id)
		rows := explore.EnsureQueries(append(append([]core.DataQuery{}, pane.Queries...), signals.Query))
		s.Store.Dispatch(explore.AddQueryRow(id, signals.Index, rows[len(rows)-1]))
		return nil
	})
}

// RemoveRow deletes the query row at the index path parameter.
func (h *Handlers) RemoveRow(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, nil, func(_ context.Context, s *hub.Session, id explore.ExploreID) error {
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			return fmt.Errorf("invalid row index: %w", err)
		}
		s.Store.Dispatch(explore.RemoveQueryRow(id, index))
		return nil
	})
}

// Run executes the pane's queries.
func (h *Handlers) Run(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, nil, func(_ context.Context, s *hub.Session, id explore.ExploreID) error {
		if !s.Explorer.RunQueriesNow(id) {
			return errNoDatasource
		}
		return nil
	})
}

// Range changes the time range and re-runs the queries.
func (h *Handlers) Range(w http.ResponseWriter, r *http.Request) {
	var signals RangeSignals
	h.handle(w, r, &signals, func(_ context.Context, s *hub.Session, id explore.ExploreID) error {
		if signals.RefreshInterval != "" {
			s.Store.Dispatch(explore.ChangeRefreshInterval(id, signals.RefreshInterval))
		}
		return s.Explorer.ChangeRange(id, signals.Range)
	})
}

// Datasource binds another datasource and re-runs the queries.
func (h *Handlers) Datasource(w http.ResponseWriter, r *http.Request) {
	var signals DatasourceSignals
	h.handle(w, r, &signals, func(ctx context.Context, s *hub.Session, id explore.ExploreID) error {
		return s.Explorer.ChangeDatasource(ctx, id, signals.Datasource)
	})
}

// URLReplaced marks the pane's URL as synchronized.
func (h *Handlers) URLReplaced(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, nil, func(_ context.Context, s *hub.Session, id explore.ExploreID) error {
		s.Store.Dispatch(explore.SetURLReplaced(id))
		return nil
	})
}

// Close removes the pane, or answers 404 when it does not exist.
func (h *Handlers) Close(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, nil, func(_ context.Context, s *hub.Session, id explore.ExploreID) error {
		if _, ok := s.Store.Pane(id); !ok {
			return errPaneNotFound
		}
		s.Store.Dispatch(explore.SplitClose(id))
		return nil
	})
}

// handle loads the session, reads signals into dst when non-nil, runs fn and
// answers with the pane snapshot or a console error.
func (h *Handlers) handle(
	w http.ResponseWriter,
	r *http.Request,
	dst any,
	fn func(ctx context.Context, s *hub.Session, id explore.ExploreID) error,
) {
	_, session, err := h.sessions.Load(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Read signals BEFORE creating SSE (SSE consumes the request body)
	if dst != nil {
		if err := datastar.ReadSignals(r, dst); err != nil {
			http.Error(w, "failed to read signals: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	id := paneID(r)
	fnErr := fn(r.Context(), session, id)
	if errors.Is(fnErr, errPaneNotFound) {
		http.Error(w, fnErr.Error(), http.StatusNotFound)
		return
	}

	sse := datastar.NewSSE(w, r)
	if fnErr != nil {
		_ = sse.ConsoleError(fnErr)
	}
	if err := patchPane(sse, session, id); err != nil {
		_ = sse.ConsoleError(err)
	}
}

// patchPane sends the pane snapshot, or null when the pane does not exist.
func patchPane(sse *datastar.ServerSentEventGenerator, session *hub.Session, id explore.ExploreID) error {
	signals := paneSignals{Explore: map[explore.ExploreID]*explore.PaneSnapshot{id: nil}}
	if pane, ok := session.Store.Pane(id); ok {
		snap := pane.Snapshot(id)
		signals.Explore[id] = &snap
	}
	return sse.MarshalAndPatchSignals(signals)
}
