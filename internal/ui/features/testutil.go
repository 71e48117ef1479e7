// Package features provides shared test utilities for UI feature tests.
package features

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapexplore/internal/datasource"
	"github.com/leapstack-labs/leapexplore/internal/explore"
	"github.com/leapstack-labs/leapexplore/internal/history"
	"github.com/leapstack-labs/leapexplore/internal/testutil"
	"github.com/leapstack-labs/leapexplore/internal/ui/features/common"
	"github.com/leapstack-labs/leapexplore/internal/ui/hub"
	"github.com/leapstack-labs/leapexplore/internal/ui/notifier"

	// Import adapter packages to ensure adapters are registered via init()
	_ "github.com/leapstack-labs/leapexplore/pkg/adapters/duckdb"
)

// TestFixture holds all dependencies needed for UI handler tests.
type TestFixture struct {
	History      *history.SQLiteStore
	Datasources  *datasource.Service
	Hub          *hub.Hub
	Notifier     *notifier.Notifier
	SessionStore *sessions.CookieStore
	Sessions     common.Sessions
}

// TestDatasources are the datasources of every fixture: two in-memory DuckDB
// databases, "mem" being the default of org 1.
func TestDatasources() []datasource.Settings {
	return []datasource.Settings{
		{UID: "mem", Name: "Memory", Type: "duckdb", Database: ":memory:", IsDefault: true},
		{UID: "scratch", Name: "Scratch", Type: "duckdb", Database: ":memory:"},
	}
}

// SetupTestFixture creates an in-memory history store, a datasource service
// over TestDatasources and a hub wired to both.
func SetupTestFixture(t *testing.T) *TestFixture {
	t.Helper()

	logger := testutil.NewTestLogger(t)

	store := history.NewSQLiteStore(history.Options{Logger: logger})
	require.NoError(t, store.Open(":memory:"))
	t.Cleanup(func() { _ = store.Close() })

	registry, err := datasource.NewRegistry(TestDatasources())
	require.NoError(t, err)
	svc := datasource.NewService(datasource.ServiceConfig{
		Registry: registry,
		History:  store,
		Logger:   logger,
	})
	t.Cleanup(func() { _ = svc.Close() })

	notify := notifier.New()
	h := hub.New(hub.Config{
		Datasources:     svc,
		History:         store,
		OnHistoryChange: func() { notify.Broadcast(notifier.TopicHistory) },
		Logger:          logger,
	})
	t.Cleanup(h.Close)

	sessionStore := NewTestSessionStore()
	return &TestFixture{
		History:      store,
		Datasources:  svc,
		Hub:          h,
		Notifier:     notify,
		SessionStore: sessionStore,
		Sessions: common.Sessions{
			Hub:      h,
			Store:    sessionStore,
			Defaults: explore.UserState{OrgID: datasource.DefaultOrgID, Login: "tester", TimeZone: "utc"},
		},
	}
}

// NewTestSessionStore creates a session store for testing.
func NewTestSessionStore() *sessions.CookieStore {
	return sessions.NewCookieStore([]byte("test-secret-key-32-bytes-long!!"))
}

// Client sends requests to a handler and carries the session cookie
// between them, like a browser would.
type Client struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

// NewClient creates a client for handler.
func NewClient(t *testing.T, handler http.Handler) *Client {
	return &Client{t: t, handler: handler, cookies: map[string]*http.Cookie{}}
}

// Do sends a request. Signals are sent as the JSON body, or as the datastar
// query parameter for GET requests.
func (c *Client) Do(method, path string, signals any) *httptest.ResponseRecorder {
	c.t.Helper()
	return c.Serve(c.Request(method, path, signals))
}

// Request builds a request carrying the client's cookies.
func (c *Client) Request(method, path string, signals any) *http.Request {
	c.t.Helper()

	var body []byte
	if signals != nil {
		var err error
		body, err = json.Marshal(signals)
		require.NoError(c.t, err)
	}

	var req *http.Request
	if method == http.MethodGet && body != nil {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		req = httptest.NewRequest(method, path+sep+"datastar="+url.QueryEscape(string(body)), nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}
	return req
}

// Serve runs req and keeps the cookies set by the response.
func (c *Client) Serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	for _, cookie := range rec.Result().Cookies() {
		c.cookies[cookie.Name] = cookie
	}
	return rec
}

// Cookies returns the cookies collected so far.
func (c *Client) Cookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, len(c.cookies))
	for _, cookie := range c.cookies {
		out = append(out, cookie)
	}
	return out
}

// PatchedSignals returns the payloads of all patch-signals events in an SSE body.
func PatchedSignals(t *testing.T, body string) []map[string]any {
	t.Helper()

	var out []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		payload, ok := strings.CutPrefix(scanner.Text(), "data: signals ")
		if !ok {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(payload), &m), "signals: %s", payload)
		out = append(out, m)
	}
	require.NoError(t, scanner.Err())
	return out
}

// LastSignals returns the payload of the last patch-signals event.
func LastSignals(t *testing.T, body string) map[string]any {
	t.Helper()
	all := PatchedSignals(t, body)
	require.NotEmpty(t, all, "no signals patched in: %s", body)
	return all[len(all)-1]
}

// Path walks nested signal maps, e.g. Path(m, "explore", "left", "initialized").
func Path(m map[string]any, keys ...string) any {
	var cur any = m
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[k]
	}
	return cur
}
