package richhistory

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/leapexplore/internal/explore"
	"github.com/leapstack-labs/leapexplore/internal/history"
	"github.com/leapstack-labs/leapexplore/internal/ui/features/common"
	"github.com/leapstack-labs/leapexplore/internal/ui/hub"
	"github.com/leapstack-labs/leapexplore/internal/ui/notifier"
)

// Handlers provides HTTP handlers for the rich history feature.
type Handlers struct {
	sessions common.Sessions
	notifier *notifier.Notifier
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sessions common.Sessions, notify *notifier.Notifier) *Handlers {
	return &Handlers{
		sessions: sessions,
		notifier: notify,
	}
}

func paneOr(id explore.ExploreID) explore.ExploreID {
	if id == "" {
		return explore.Left
	}
	return id
}

// List searches the history of a pane, storing new filters when given.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	var signals ListSignals
	h.handle(w, r, &signals, func(ctx context.Context, s *hub.Session) (explore.ExploreID, error) {
		id := paneOr(signals.Pane)
		if signals.Filters != nil {
			return id, s.Explorer.UpdateRichHistoryFilters(ctx, id, *signals.Filters)
		}
		return id, s.Explorer.LoadRichHistory(ctx, id)
	})
}

// ListSSE streams the history of the pane named by the pane query parameter,
// reloading it whenever any session changes the history.
func (h *Handlers) ListSSE(w http.ResponseWriter, r *http.Request) {
	_, session, err := h.sessions.Load(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	id := paneOr(explore.ExploreID(r.URL.Query().Get("pane")))

	updates := h.notifier.Subscribe()
	defer h.notifier.Unsubscribe(updates)

	sse := datastar.NewSSE(w, r)
	send := func() {
		if err := session.Explorer.LoadRichHistory(r.Context(), id); err != nil {
			_ = sse.ConsoleError(err)
			return
		}
		if err := patchView(sse, session, id); err != nil {
			_ = sse.ConsoleError(err)
		}
	}
	send()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case topic := <-updates:
			if topic == notifier.TopicHistory {
				send()
			}
		}
	}
}

// Star stars or unstars an entry.
func (h *Handlers) Star(w http.ResponseWriter, r *http.Request) {
	var signals StarSignals
	h.handle(w, r, &signals, func(ctx context.Context, s *hub.Session) (explore.ExploreID, error) {
		id := paneOr(signals.Pane)
		return id, s.Explorer.StarRichHistory(ctx, id, chi.URLParam(r, "entryID"), signals.Starred)
	})
}

// Comment sets the comment of an entry.
func (h *Handlers) Comment(w http.ResponseWriter, r *http.Request) {
	var signals CommentSignals
	h.handle(w, r, &signals, func(ctx context.Context, s *hub.Session) (explore.ExploreID, error) {
		id := paneOr(signals.Pane)
		return id, s.Explorer.CommentRichHistory(ctx, id, chi.URLParam(r, "entryID"), signals.Comment)
	})
}

// Delete removes an entry. The pane comes from the pane query parameter.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, nil, func(ctx context.Context, s *hub.Session) (explore.ExploreID, error) {
		id := paneOr(explore.ExploreID(r.URL.Query().Get("pane")))
		return id, s.Explorer.DeleteRichHistory(ctx, id, chi.URLParam(r, "entryID"))
	})
}

// handle loads the session, reads signals into dst when non-nil and runs fn.
// Unknown entries answer 404; other failures are reported to the console.
func (h *Handlers) handle(
	w http.ResponseWriter,
	r *http.Request,
	dst any,
	fn func(ctx context.Context, s *hub.Session) (explore.ExploreID, error),
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

	id, fnErr := fn(r.Context(), session)
	if errors.Is(fnErr, history.ErrNotFound) {
		http.Error(w, fnErr.Error(), http.StatusNotFound)
		return
	}

	sse := datastar.NewSSE(w, r)
	if fnErr != nil {
		_ = sse.ConsoleError(fnErr)
		return
	}
	if err := patchView(sse, session, id); err != nil {
		_ = sse.ConsoleError(err)
	}
}

func patchView(sse *datastar.ServerSentEventGenerator, session *hub.Session, id explore.ExploreID) error {
	pane, ok := session.Store.Pane(id)
	if !ok {
		pane = explore.MakePaneState()
	}
	return sse.MarshalAndPatchSignals(viewSignals{RichHistory: View{
		Pane:    id,
		Entries: pane.RichHistory,
		Total:   pane.RichHistoryTotal,
		Filters: pane.RichHistorySearchFilters,
	}})
}
