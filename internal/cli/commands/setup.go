package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapexplore/internal/cli/config"
	"github.com/leapstack-labs/leapexplore/internal/datasource"
	"github.com/leapstack-labs/leapexplore/internal/explore"
	"github.com/leapstack-labs/leapexplore/internal/history"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg         *config.Config
	Logger      *slog.Logger
	History     *history.SQLiteStore
	Datasources *datasource.Service
}

// NewCommandContext opens the rich history and the datasource service.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	store, err := openHistory(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	settings, err := datasource.LoadProvisioning(cfg.ProvisioningDir, cfg.Datasources)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	registry, err := datasource.NewRegistry(settings)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("invalid datasources: %w", err)
	}
	svc := datasource.NewService(datasource.ServiceConfig{
		Registry:          registry,
		History:           store,
		FallbackToDefault: cfg.Explore.FallbackToDefault,
		HistoryLimit:      explore.MaxHistoryItems,
		MaxRows:           cfg.Explore.MaxRows,
		QueryTimeout:      cfg.Explore.QueryTimeout,
		Logger:            logger,
	})

	cleanup := func() {
		if err := svc.Close(); err != nil {
			logger.Warn("failed to close datasources", "error", err)
		}
		_ = store.Close()
	}

	return &CommandContext{
		Cfg:         cfg,
		Logger:      logger,
		History:     store,
		Datasources: svc,
	}, cleanup, nil
}

// User returns the profile commands act as.
func (c *CommandContext) User() explore.UserState {
	return explore.UserState{
		OrgID:    c.Cfg.OrgID,
		Login:    c.Cfg.Login,
		TimeZone: c.Cfg.Explore.DefaultTimezone,
	}
}

// getConfig returns the current configuration, or the defaults when none was loaded.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return config.Default()
}

func openHistory(cfg *config.Config, logger *slog.Logger) (*history.SQLiteStore, error) {
	// Ensure history directory exists
	if cfg.History.Path != ":memory:" {
		dir := filepath.Dir(cfg.History.Path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create history directory: %w", err)
			}
		}
	}

	store := history.NewSQLiteStore(history.Options{
		MaxEntries: cfg.History.MaxEntries,
		Logger:     logger,
	})
	if err := store.Open(cfg.History.Path); err != nil {
		return nil, fmt.Errorf("failed to open rich history: %w", err)
	}
	return store, nil
}

// outputFormat returns the format flag when set, otherwise the configured output.
func outputFormat(cmd *cobra.Command, cfg *config.Config) string {
	if f := cmd.Flags().Lookup("format"); f != nil && f.Changed {
		return f.Value.String()
	}
	if cfg.OutputFormat != "" {
		return cfg.OutputFormat
	}
	return config.DefaultOutput
}
