package datasources

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/leapexplore/internal/datasource"
	"github.com/leapstack-labs/leapexplore/internal/ui/features/common"
	"github.com/leapstack-labs/leapexplore/internal/ui/notifier"
	"github.com/leapstack-labs/leapexplore/pkg/core"
)

// Handlers provides HTTP handlers for the datasources feature.
type Handlers struct {
	sessions common.Sessions
	svc      *datasource.Service
	notifier *notifier.Notifier
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sessions common.Sessions, svc *datasource.Service, notify *notifier.Notifier) *Handlers {
	return &Handlers{
		sessions: sessions,
		svc:      svc,
		notifier: notify,
	}
}

// List sends the datasources of the caller's org.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	profile, err := common.LoadProfile(w, r, h.sessions.Store, h.sessions.Defaults)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sse := datastar.NewSSE(w, r)
	if err := h.sendList(sse, profile.User.OrgID); err != nil {
		_ = sse.ConsoleError(err)
	}
}

// ListSSE streams the datasource list, resending it after every reload of
// the provisioning directory.
func (h *Handlers) ListSSE(w http.ResponseWriter, r *http.Request) {
	profile, err := common.LoadProfile(w, r, h.sessions.Store, h.sessions.Defaults)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	updates := h.notifier.Subscribe()
	defer h.notifier.Unsubscribe(updates)

	sse := datastar.NewSSE(w, r)
	if err := h.sendList(sse, profile.User.OrgID); err != nil {
		_ = sse.ConsoleError(err)
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case topic := <-updates:
			if topic != notifier.TopicDatasources {
				continue
			}
			if err := h.sendList(sse, profile.User.OrgID); err != nil {
				_ = sse.ConsoleError(err)
			}
		}
	}
}

// Check connects to and pings every datasource of the caller's org.
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	profile, err := common.LoadProfile(w, r, h.sessions.Store, h.sessions.Defaults)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	results := h.svc.Check(r.Context(), profile.User.OrgID)
	items := make([]CheckItem, len(results))
	for i, res := range results {
		items[i] = CheckItem{
			Item:       toItem(res.Settings),
			OK:         res.Err == nil,
			DurationMS: res.Duration.Milliseconds(),
		}
		if res.Err != nil {
			items[i].Error = res.Err.Error()
		}
	}

	sse := datastar.NewSSE(w, r)
	if err := sse.MarshalAndPatchSignals(checkSignals{DatasourceChecks: items}); err != nil {
		_ = sse.ConsoleError(err)
	}
}

// Table sends the columns of one table so the query editor can offer them.
// Unknown datasources answer 404; lookup failures are reported on the console.
func (h *Handlers) Table(w http.ResponseWriter, r *http.Request) {
	profile, err := common.LoadProfile(w, r, h.sessions.Store, h.sessions.Defaults)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	uid := chi.URLParam(r, "uid")
	inst, err := h.svc.Instance(r.Context(), profile.User.OrgID, core.DataSourceRef{UID: uid})
	if errors.Is(err, datasource.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	sse := datastar.NewSSE(w, r)
	if err != nil {
		_ = sse.ConsoleError(err)
		return
	}
	meta, err := inst.Describe(r.Context(), chi.URLParam(r, "table"))
	if err != nil {
		_ = sse.ConsoleError(err)
		return
	}
	if err := sse.MarshalAndPatchSignals(tableSignals{DatasourceTable: toTable(uid, meta)}); err != nil {
		_ = sse.ConsoleError(err)
	}
}

func (h *Handlers) sendList(sse *datastar.ServerSentEventGenerator, orgID int64) error {
	list := h.svc.Registry().List(orgID)
	items := make([]Item, len(list))
	for i, s := range list {
		items[i] = toItem(s)
	}
	return sse.MarshalAndPatchSignals(listSignals{Datasources: items})
}
