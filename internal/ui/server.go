// Package ui provides the HTTP/SSE server of LeapExplore.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapexplore/internal/datasource"
	"github.com/leapstack-labs/leapexplore/internal/explore"
	"github.com/leapstack-labs/leapexplore/internal/history"
	"github.com/leapstack-labs/leapexplore/internal/ui/features/common"
	"github.com/leapstack-labs/leapexplore/internal/ui/hub"
	"github.com/leapstack-labs/leapexplore/internal/ui/notifier"
	"github.com/leapstack-labs/leapexplore/internal/ui/router"
)

// Server is the main UI server.
type Server struct {
	datasources  *datasource.Service
	history      *history.SQLiteStore
	hub          *hub.Hub
	sessionStore *sessions.CookieStore
	defaults     explore.UserState
	port         int

	provisioningDir  string
	baseDatasources  []datasource.Settings
	historyRetention time.Duration

	logger   *slog.Logger
	notifier *notifier.Notifier
}

// Config holds configuration for the UI server.
type Config struct {
	Datasources *datasource.Service
	History     *history.SQLiteStore
	Port        int

	SessionSecret string
	// DefaultUser is the profile of sessions that never set one.
	DefaultUser explore.UserState

	CacheSize   int
	DefaultZone *time.Location

	// ProvisioningDir is watched for datasource files when set. Files are
	// merged over BaseDatasources.
	ProvisioningDir string
	BaseDatasources []datasource.Settings

	// SessionIdle and MaxSessions bound the explore sessions kept in memory.
	SessionIdle time.Duration
	MaxSessions int

	// HistoryRetention enables an hourly cleanup of unstarred entries older
	// than the retention.
	HistoryRetention time.Duration

	Logger *slog.Logger
}

// NewServer creates a new UI server instance.
func NewServer(cfg Config) *Server {
	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.MaxAge(86400 * 30) // 30 days
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	notify := notifier.New()

	return &Server{
		datasources: cfg.Datasources,
		history:     cfg.History,
		hub: hub.New(hub.Config{
			Datasources:     cfg.Datasources,
			History:         cfg.History,
			CacheSize:       cfg.CacheSize,
			DefaultZone:     cfg.DefaultZone,
			OnHistoryChange: func() { notify.Broadcast(notifier.TopicHistory) },
			IdleTimeout:     cfg.SessionIdle,
			MaxSessions:     cfg.MaxSessions,
			Logger:          logger,
		}),
		sessionStore:     sessionStore,
		defaults:         cfg.DefaultUser,
		port:             cfg.Port,
		provisioningDir:  cfg.ProvisioningDir,
		baseDatasources:  cfg.BaseDatasources,
		historyRetention: cfg.HistoryRetention,
		logger:           logger,
		notifier:         notify,
	}
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() (http.Handler, error) {
	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	sess := common.Sessions{Hub: s.hub, Store: s.sessionStore, Defaults: s.defaults}
	if err := router.SetupRoutes(r, sess, s.datasources, s.notifier); err != nil {
		return nil, fmt.Errorf("failed to setup routes: %w", err)
	}
	return r, nil
}

// Serve starts the UI server and blocks until the context is cancelled.
// Explore sessions are closed on return.
func (s *Server) Serve(ctx context.Context) error {
	defer s.hub.Close()

	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting UI server", "addr", fmt.Sprintf("http://localhost:%d", s.port))

	eg, egctx := errgroup.WithContext(ctx)

	handler, err := s.Handler()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Reload datasources when provisioning files change
	if s.provisioningDir != "" {
		eg.Go(func() error {
			return datasource.Watch(egctx, s.provisioningDir, s.baseDatasources, s.logger, s.reloadDatasources)
		})
	}

	if s.historyRetention > 0 && s.history != nil {
		eg.Go(func() error {
			s.cleanupHistory(egctx, time.Hour)
			return nil
		})
	}

	eg.Go(func() error {
		s.evictSessions(egctx, time.Minute)
		return nil
	})

	// Start HTTP server
	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down UI server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// Notifier returns the server's notifier for SSE updates.
func (s *Server) Notifier() *notifier.Notifier {
	return s.notifier
}

// reloadDatasources applies reloaded settings and notifies all SSE clients.
func (s *Server) reloadDatasources(settings []datasource.Settings) error {
	if err := s.datasources.Reload(settings); err != nil {
		return err
	}
	s.notifier.Broadcast(notifier.TopicDatasources)
	return nil
}

// evictSessions closes idle explore sessions every interval.
func (s *Server) evictSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if n := s.hub.EvictIdle(); n > 0 {
			s.logger.Debug("evicted idle explore sessions", "count", n, "live", s.hub.Len())
		}
	}
}

// cleanupHistory removes expired history entries now and then every interval.
func (s *Server) cleanupHistory(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := s.history.Cleanup(ctx, s.historyRetention)
		switch {
		case err != nil:
			s.logger.Warn("history cleanup failed", "error", err)
		case n > 0:
			s.logger.Info("history cleaned up", "deleted", n)
			s.notifier.Broadcast(notifier.TopicHistory)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
