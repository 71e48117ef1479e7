// Package adapter provides the datasource adapter contract and registry
// used by LeapExplore panes to reach a backing database.
//
// Concrete adapter implementations live in pkg/adapters/ subdirectories and
// register themselves from init().
package adapter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapexplore/pkg/core"
)

// Type aliases so adapter implementations only need to import this package.
type (
	// Adapter is an alias for core.Adapter.
	Adapter = core.Adapter

	// Config is an alias for core.AdapterConfig.
	Config = core.AdapterConfig

	// Column is an alias for core.Column.
	Column = core.Column

	// Metadata is an alias for core.TableMetadata.
	Metadata = core.TableMetadata

	// Rows is an alias for core.Rows.
	Rows = core.Rows
)

// Pinger is implemented by adapters that can verify a live connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Open creates an adapter for cfg.Type and connects it.
// The adapter is closed again if the connection attempt fails.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Adapter, error) {
	adp, err := NewAdapter(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := adp.Connect(ctx, cfg); err != nil {
		_ = adp.Close()
		return nil, fmt.Errorf("connect %s: %w", cfg.Type, err)
	}
	return adp, nil
}
