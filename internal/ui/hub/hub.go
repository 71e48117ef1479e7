// Package hub keeps one explore store per browser session.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/leapstack-labs/leapexplore/internal/explore"
	"github.com/leapstack-labs/leapexplore/pkg/core"
)

// ErrClosed is returned by Session after Close.
var ErrClosed = errors.New("hub closed")

// Session limits applied when Config leaves them unset.
const (
	DefaultIdleTimeout = 30 * time.Minute
	DefaultMaxSessions = 1000
)

// Config holds the collaborators shared by every session.
type Config struct {
	Datasources explore.DatasourceLoader
	History     explore.RichHistory // optional
	CacheSize   int
	DefaultZone *time.Location
	Now         func() time.Time

	// OnHistoryChange is called after a session changed the rich history.
	OnHistoryChange func()

	// IdleTimeout is how long a session without requests or attached streams
	// survives EvictIdle. MaxSessions bounds live sessions; creating one more
	// closes the least recently used session without streams.
	IdleTimeout time.Duration
	MaxSessions int

	Logger *slog.Logger
}

// Session is the explore state of one browser session.
type Session struct {
	ID       string
	Store    *explore.Store
	Explorer *explore.Explorer

	// guarded by Hub.mu
	lastSeen time.Time
	streams  int
}

// Hub owns the sessions.
type Hub struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// New creates an empty hub.
func New(cfg Config) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.History != nil && cfg.OnHistoryChange != nil {
		cfg.History = notifyingHistory{RichHistory: cfg.History, notify: cfg.OnHistoryChange}
	}
	return &Hub{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Session returns the session id, creating it on first use. When user differs
// from the profile held by an existing session, SetUser is dispatched.
func (h *Hub) Session(id string, user explore.UserState) (*Session, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	now := h.cfg.Now()

	if s, ok := h.sessions[id]; ok {
		s.lastSeen = now
		h.mu.Unlock()
		if s.Store.State().User != user {
			s.Store.Dispatch(explore.SetUser(user))
		}
		return s, nil
	}

	var evicted *Session
	if len(h.sessions) >= h.cfg.MaxSessions {
		evicted = h.leastRecentIdle()
		if evicted != nil {
			delete(h.sessions, evicted.ID)
		}
	}
	s := h.newSession(id, user, now)
	h.sessions[id] = s
	h.mu.Unlock()

	if evicted != nil {
		evicted.Store.Close()
		h.cfg.Logger.Debug("explore session evicted", "session", evicted.ID, "reason", "max sessions")
	}
	return s, nil
}

func (h *Hub) newSession(id string, user explore.UserState, now time.Time) *Session {
	logger := h.cfg.Logger.With("session", id)
	store := explore.NewStore(explore.State{User: user}, logger)
	store.Use(explore.QueryRunner(explore.RunnerConfig{
		CacheSize: h.cfg.CacheSize,
		History:   h.cfg.History,
		Now:       h.cfg.Now,
		Logger:    logger,
	}))
	s := &Session{
		ID:       id,
		lastSeen: now,
		Store:    store,
		Explorer: explore.NewExplorer(explore.ExplorerConfig{
			Store:       store,
			Datasources: h.cfg.Datasources,
			History:     h.cfg.History,
			DefaultZone: h.cfg.DefaultZone,
			Now:         h.cfg.Now,
			Logger:      logger,
		}),
	}
	logger.Debug("explore session created")
	return s
}

// leastRecentIdle returns the least recently seen session without attached
// streams, or nil. h.mu must be held.
func (h *Hub) leastRecentIdle() *Session {
	var oldest *Session
	for _, s := range h.sessions {
		if s.streams > 0 {
			continue
		}
		if oldest == nil || s.lastSeen.Before(oldest.lastSeen) {
			oldest = s
		}
	}
	return oldest
}

// Attach marks a long-lived stream on s so it is not evicted while open.
// The returned func detaches it.
func (h *Hub) Attach(s *Session) (detach func()) {
	h.mu.Lock()
	s.streams++
	h.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			s.streams--
			s.lastSeen = h.cfg.Now()
			h.mu.Unlock()
		})
	}
}

// EvictIdle closes sessions without streams that saw no request for
// IdleTimeout and returns how many were closed.
func (h *Hub) EvictIdle() int {
	h.mu.Lock()
	cutoff := h.cfg.Now().Add(-h.cfg.IdleTimeout)
	var idle []*Session
	for id, s := range h.sessions {
		if s.streams == 0 && !s.lastSeen.After(cutoff) {
			idle = append(idle, s)
			delete(h.sessions, id)
		}
	}
	h.mu.Unlock()

	for _, s := range idle {
		s.Store.Close()
	}
	return len(idle)
}

// Drop closes and forgets session id.
func (h *Hub) Drop(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if ok {
		s.Store.Close()
	}
}

// Len returns the number of live sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close closes every session store. Later calls to Session fail with ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = map[string]*Session{}
	h.closed = true
	h.mu.Unlock()

	for _, s := range sessions {
		s.Store.Close()
	}
}

// notifyingHistory calls notify after every successful write.
type notifyingHistory struct {
	explore.RichHistory
	notify func()
}

func (n notifyingHistory) Add(ctx context.Context, q core.RichHistoryQuery) (core.RichHistoryQuery, error) {
	q, err := n.RichHistory.Add(ctx, q)
	if err == nil {
		n.notify()
	}
	return q, err
}

func (n notifyingHistory) Star(ctx context.Context, orgID int64, id string, starred bool) (core.RichHistoryQuery, error) {
	q, err := n.RichHistory.Star(ctx, orgID, id, starred)
	if err == nil {
		n.notify()
	}
	return q, err
}

func (n notifyingHistory) Comment(ctx context.Context, orgID int64, id, comment string) (core.RichHistoryQuery, error) {
	q, err := n.RichHistory.Comment(ctx, orgID, id, comment)
	if err == nil {
		n.notify()
	}
	return q, err
}

func (n notifyingHistory) Delete(ctx context.Context, orgID int64, id string) error {
	err := n.RichHistory.Delete(ctx, orgID, id)
	if err == nil {
		n.notify()
	}
	return err
}
