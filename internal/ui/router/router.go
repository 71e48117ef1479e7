// Package router sets up HTTP routes for the UI server.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/leapexplore/internal/datasource"
	accountFeature "github.com/leapstack-labs/leapexplore/internal/ui/features/account"
	"github.com/leapstack-labs/leapexplore/internal/ui/features/common"
	datasourcesFeature "github.com/leapstack-labs/leapexplore/internal/ui/features/datasources"
	paneFeature "github.com/leapstack-labs/leapexplore/internal/ui/features/pane"
	richhistoryFeature "github.com/leapstack-labs/leapexplore/internal/ui/features/richhistory"
	"github.com/leapstack-labs/leapexplore/internal/ui/notifier"
)

// SetupRoutes configures all routes for the UI server.
func SetupRoutes(
	router chi.Router,
	sessions common.Sessions,
	svc *datasource.Service,
	notify *notifier.Notifier,
) error {
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if err := accountFeature.SetupRoutes(router, sessions); err != nil {
		return err
	}

	if err := datasourcesFeature.SetupRoutes(router, sessions, svc, notify); err != nil {
		return err
	}

	if err := paneFeature.SetupRoutes(router, sessions, svc); err != nil {
		return err
	}

	if err := richhistoryFeature.SetupRoutes(router, sessions, notify); err != nil {
		return err
	}

	return nil
}
