package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/leapstack-labs/leapexplore/pkg/adapter"
)

// Adapter implements the adapter.Adapter interface for PostgreSQL.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new PostgreSQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// Connect establishes a connection to PostgreSQL.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	dsn := buildPostgresDSN(cfg)

	a.Logger.Debug("connecting to postgres", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("invalid postgres connection settings: %w", err)
	}
	if cfg.Schema != "" {
		connCfg.RuntimeParams["search_path"] = cfg.Schema
	}

	db := stdlib.OpenDB(*connCfg)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// buildPostgresDSN constructs a PostgreSQL connection string.
// Options other than sslmode are appended in key order.
func buildPostgresDSN(cfg adapter.Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	sslmode := "disable"
	if mode, ok := cfg.Options["sslmode"]; ok {
		sslmode = mode
	}

	dsn := fmt.Sprintf("host=%s port=%d", host, port)
	if cfg.Database != "" {
		dsn += fmt.Sprintf(" dbname=%s", cfg.Database)
	}
	dsn += fmt.Sprintf(" sslmode=%s", sslmode)

	if cfg.Username != "" {
		dsn += fmt.Sprintf(" user=%s", cfg.Username)
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", cfg.Password)
	}

	keys := make([]string, 0, len(cfg.Options))
	for k := range cfg.Options {
		if k != "sslmode" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		dsn += fmt.Sprintf(" %s=%s", k, cfg.Options[k])
	}

	return dsn
}

// GetTableMetadata retrieves metadata for a specified table.
func (a *Adapter) GetTableMetadata(ctx context.Context, table string) (*adapter.Metadata, error) {
	schema := a.Cfg.Schema
	if schema == "" || strings.Contains(schema, ",") {
		schema = "public"
	}
	return a.GetTableMetadataCommon(ctx, table, schema, adapter.DollarPlaceholder)
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
