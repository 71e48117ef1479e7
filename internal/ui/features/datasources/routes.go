// Package datasources provides handlers listing the configured datasources.
package datasources

import (
	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/leapexplore/internal/datasource"
	"github.com/leapstack-labs/leapexplore/internal/ui/features/common"
	"github.com/leapstack-labs/leapexplore/internal/ui/notifier"
)

// SetupRoutes registers the datasources feature routes.
func SetupRoutes(
	router chi.Router,
	sessions common.Sessions,
	svc *datasource.Service,
	notify *notifier.Notifier,
) error {
	handlers := NewHandlers(sessions, svc, notify)

	router.Route("/api/datasources", func(r chi.Router) {
		r.Get("/", handlers.List)
		r.Get("/sse", handlers.ListSSE)
		r.Post("/check", handlers.Check)
		r.Get("/{uid}/tables/{table}", handlers.Table)
	})

	return nil
}
