// Package pane provides the HTTP surface of explore panes.
package pane

import (
	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/leapexplore/internal/ui/features/common"
)

// SetupRoutes registers the pane feature routes.
func SetupRoutes(
	router chi.Router,
	sessions common.Sessions,
	datasources PreferredSource,
) error {
	handlers := NewHandlers(sessions, datasources)

	router.Route("/api/explore/{paneID}", func(r chi.Router) {
		r.Get("/", handlers.Snapshot)
		r.Get("/sse", handlers.PaneSSE)
		r.Post("/init", handlers.Init)
		r.Post("/split", handlers.Split)
		r.Post("/resize", handlers.Resize)
		r.Post("/panels", handlers.Panels)
		r.Post("/queries", handlers.Queries)
		r.Post("/rows", handlers.AddRow)
		r.Delete("/rows/{index}", handlers.RemoveRow)
		r.Post("/run", handlers.Run)
		r.Post("/range", handlers.Range)
		r.Post("/datasource", handlers.Datasource)
		r.Post("/url-replaced", handlers.URLReplaced)
		r.Delete("/", handlers.Close)
	})

	return nil
}
