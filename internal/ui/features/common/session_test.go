package common

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapexplore/internal/explore"
	"github.com/leapstack-labs/leapexplore/internal/ui/hub"
)

func withCookies(req *http.Request, rec *httptest.ResponseRecorder) *http.Request {
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestLoadProfile_NewAndExistingSession(t *testing.T) {
	store := sessions.NewCookieStore([]byte("test-secret"))
	defaults := explore.UserState{OrgID: 1, Login: "anonymous"}

	rec := httptest.NewRecorder()
	first, err := LoadProfile(rec, httptest.NewRequest(http.MethodGet, "/", nil), store, defaults)
	require.NoError(t, err)
	assert.NotEmpty(t, first.SessionID)
	assert.Equal(t, defaults, first.User)
	require.NotEmpty(t, rec.Result().Cookies(), "a new session writes its cookie")

	req := withCookies(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	rec2 := httptest.NewRecorder()
	second, err := LoadProfile(rec2, req, store, defaults)
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Empty(t, rec2.Result().Cookies(), "an existing session is not rewritten")
}

func TestSaveUser(t *testing.T) {
	store := sessions.NewCookieStore([]byte("test-secret"))
	defaults := explore.UserState{OrgID: 1}

	rec := httptest.NewRecorder()
	profile, err := LoadProfile(rec, httptest.NewRequest(http.MethodGet, "/", nil), store, defaults)
	require.NoError(t, err)

	profile.User = explore.UserState{OrgID: 2, Login: "ada", TimeZone: "Europe/Paris"}
	rec2 := httptest.NewRecorder()
	require.NoError(t, SaveUser(rec2, withCookies(httptest.NewRequest(http.MethodPost, "/", nil), rec), store, profile))

	got, err := LoadProfile(httptest.NewRecorder(), withCookies(httptest.NewRequest(http.MethodGet, "/", nil), rec2), store, defaults)
	require.NoError(t, err)
	assert.Equal(t, profile, got)
}

func TestSessions_CookielessRequestsAreBounded(t *testing.T) {
	h := hub.New(hub.Config{MaxSessions: 10})
	defer h.Close()
	s := Sessions{Hub: h, Store: sessions.NewCookieStore([]byte("test-secret")), Defaults: explore.UserState{OrgID: 1}}

	for range 1000 {
		_, session, err := s.Load(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		require.NotNil(t, session)
	}
	assert.Equal(t, 10, h.Len())
}
