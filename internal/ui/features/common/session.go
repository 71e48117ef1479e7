// Package common provides shared session handling for UI features.
package common

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/leapstack-labs/leapexplore/internal/explore"
	"github.com/leapstack-labs/leapexplore/internal/ui/hub"
)

// SessionName is the name of the session cookie.
const SessionName = "leapexplore"

const (
	keyID       = "id"
	keyOrgID    = "org_id"
	keyLogin    = "login"
	keyTimeZone = "time_zone"
)

// Profile is the identity carried by the session cookie.
type Profile struct {
	SessionID string
	User      explore.UserState
}

// LoadProfile reads the session cookie. A request without a session gets a
// new session id and the defaults, and the cookie is written to w.
// It must be called before the response body is started.
func LoadProfile(w http.ResponseWriter, r *http.Request, store sessions.Store, defaults explore.UserState) (Profile, error) {
	session, err := store.Get(r, SessionName)
	if err != nil && session == nil {
		return Profile{}, fmt.Errorf("failed to read session: %w", err)
	}

	id, _ := session.Values[keyID].(string)
	if id == "" {
		id = uuid.NewString()
		session.Values[keyID] = id
		setUser(session, defaults)
		if err := session.Save(r, w); err != nil {
			return Profile{}, fmt.Errorf("failed to save session: %w", err)
		}
	}

	return Profile{SessionID: id, User: userOf(session, defaults)}, nil
}

// SaveUser stores user in the session cookie.
func SaveUser(w http.ResponseWriter, r *http.Request, store sessions.Store, profile Profile) error {
	session, err := store.Get(r, SessionName)
	if err != nil && session == nil {
		return fmt.Errorf("failed to read session: %w", err)
	}
	session.Values[keyID] = profile.SessionID
	setUser(session, profile.User)
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func setUser(session *sessions.Session, user explore.UserState) {
	session.Values[keyOrgID] = user.OrgID
	session.Values[keyLogin] = user.Login
	session.Values[keyTimeZone] = user.TimeZone
}

func userOf(session *sessions.Session, defaults explore.UserState) explore.UserState {
	user := defaults
	if v, ok := session.Values[keyOrgID].(int64); ok && v > 0 {
		user.OrgID = v
	}
	if v, ok := session.Values[keyLogin].(string); ok {
		user.Login = v
	}
	if v, ok := session.Values[keyTimeZone].(string); ok {
		user.TimeZone = v
	}
	return user
}

// Sessions resolves requests to their profile and explore session.
type Sessions struct {
	Hub      *hub.Hub
	Store    sessions.Store
	Defaults explore.UserState
}

// Load returns the caller's profile and explore session, creating both on
// first use. It must be called before the response body is started.
func (s Sessions) Load(w http.ResponseWriter, r *http.Request) (Profile, *hub.Session, error) {
	profile, err := LoadProfile(w, r, s.Store, s.Defaults)
	if err != nil {
		return Profile{}, nil, err
	}
	session, err := s.Hub.Session(profile.SessionID, profile.User)
	if err != nil {
		return Profile{}, nil, err
	}
	return profile, session, nil
}
