package account

import (
	"fmt"
	"net/http"
	"time"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/leapexplore/internal/explore"
	"github.com/leapstack-labs/leapexplore/internal/timerange"
	"github.com/leapstack-labs/leapexplore/internal/ui/features/common"
)

// UserSignals carries the profile edited by the client.
type UserSignals struct {
	User explore.UserState `json:"user"`
}

// Handlers provides HTTP handlers for the account feature.
type Handlers struct {
	sessions common.Sessions
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sessions common.Sessions) *Handlers {
	return &Handlers{sessions: sessions}
}

// Get sends the profile of the session.
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	profile, err := common.LoadProfile(w, r, h.sessions.Store, h.sessions.Defaults)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sse := datastar.NewSSE(w, r)
	if err := sse.MarshalAndPatchSignals(UserSignals{User: profile.User}); err != nil {
		_ = sse.ConsoleError(err)
	}
}

// Update validates and stores a new profile. The session's explore store
// receives it as SetUser, so later range resolution uses the new time zone.
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	profile, err := common.LoadProfile(w, r, h.sessions.Store, h.sessions.Defaults)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var signals UserSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		http.Error(w, "failed to read signals: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := validate(signals.User); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	profile.User = signals.User
	if err := common.SaveUser(w, r, h.sessions.Store, profile); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := h.sessions.Hub.Session(profile.SessionID, profile.User); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	sse := datastar.NewSSE(w, r)
	if err := sse.MarshalAndPatchSignals(UserSignals{User: profile.User}); err != nil {
		_ = sse.ConsoleError(err)
	}
}

func validate(user explore.UserState) error {
	if user.OrgID <= 0 {
		return fmt.Errorf("org id must be positive, got %d", user.OrgID)
	}
	if _, err := timerange.ResolveZone(user.TimeZone, time.UTC); err != nil {
		return err
	}
	return nil
}
