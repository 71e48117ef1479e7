// Package postgres provides a PostgreSQL datasource adapter for LeapExplore.
//
// This file registers the PostgreSQL adapter with the adapter registry.
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/leapstack-labs/leapexplore/pkg/adapters/postgres"
package postgres

import (
	"log/slog"

	"github.com/leapstack-labs/leapexplore/pkg/adapter"
)

func init() {
	adapter.Register("postgres", func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
