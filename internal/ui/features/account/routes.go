// Package account provides handlers for the user profile of a session.
package account

import (
	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/leapexplore/internal/ui/features/common"
)

// SetupRoutes registers the account feature routes.
func SetupRoutes(router chi.Router, sessions common.Sessions) error {
	handlers := NewHandlers(sessions)

	router.Get("/api/user", handlers.Get)
	router.Post("/api/user", handlers.Update)

	return nil
}
