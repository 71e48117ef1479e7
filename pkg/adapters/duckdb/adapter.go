package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/leapstack-labs/leapexplore/pkg/adapter"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// identRe restricts extension and setting names to plain identifiers.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Adapter implements the adapter.Adapter interface for DuckDB.
type Adapter struct {
	adapter.BaseSQLAdapter
	params *Params
}

// New creates a new DuckDB adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// Connect establishes a connection to DuckDB.
// An empty path or ":memory:" opens an in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	params, err := ParseParams(cfg.Params)
	if err != nil {
		return err
	}

	dsn := cfg.Path
	if dsn == "" || dsn == ":memory:" {
		dsn = ""
	} else if params.ReadOnly {
		dsn += "?access_mode=read_only"
	}

	a.Logger.Debug("connecting to duckdb", slog.String("path", cfg.Path))

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	a.params = params

	if err := a.applyParams(ctx); err != nil {
		_ = db.Close()
		a.DB = nil
		return err
	}

	return nil
}

// applyParams installs extensions and applies session settings.
func (a *Adapter) applyParams(ctx context.Context) error {
	for _, ext := range a.params.Extensions {
		if !identRe.MatchString(ext) {
			return fmt.Errorf("invalid extension name %q", ext)
		}
		if err := a.Exec(ctx, fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			return fmt.Errorf("failed to load extension %s: %w", ext, err)
		}
	}
	for name, value := range a.params.Settings {
		if !identRe.MatchString(name) {
			return fmt.Errorf("invalid setting name %q", name)
		}
		if err := a.Exec(ctx, fmt.Sprintf("SET %s = '%s'", name, value)); err != nil {
			return fmt.Errorf("failed to apply setting %s: %w", name, err)
		}
	}
	return nil
}

// GetTableMetadata retrieves metadata for a specified table.
func (a *Adapter) GetTableMetadata(ctx context.Context, table string) (*adapter.Metadata, error) {
	return a.GetTableMetadataCommon(ctx, table, "main", adapter.QuestionPlaceholder)
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
