// Package richhistory provides handlers for the persisted query history.
package richhistory

import (
	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/leapexplore/internal/ui/features/common"
	"github.com/leapstack-labs/leapexplore/internal/ui/notifier"
)

// SetupRoutes registers the rich history feature routes.
func SetupRoutes(
	router chi.Router,
	sessions common.Sessions,
	notify *notifier.Notifier,
) error {
	handlers := NewHandlers(sessions, notify)

	router.Route("/api/history", func(r chi.Router) {
		r.Get("/", handlers.List)
		r.Get("/sse", handlers.ListSSE)
		r.Post("/{entryID}/star", handlers.Star)
		r.Post("/{entryID}/comment", handlers.Comment)
		r.Delete("/{entryID}", handlers.Delete)
	})

	return nil
}
