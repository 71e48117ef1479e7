package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapexplore/internal/timerange"
	"github.com/leapstack-labs/leapexplore/pkg/adapter"
)

// OutputFormats lists the accepted values of the output option.
var OutputFormats = []string{"table", "json", "csv", "md"}

// ValidOutput reports whether format is an accepted output format.
func ValidOutput(format string) bool {
	switch strings.ToLower(format) {
	case "", "table", "json", "csv", "md", "markdown":
		return true
	}
	return false
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error
	if c.OrgID <= 0 {
		errs = append(errs, fmt.Errorf("org_id must be positive, got %d", c.OrgID))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Server.SessionIdleTimeout < 0 {
		errs = append(errs, errors.New("server.session_idle_timeout must not be negative"))
	}
	if c.Server.MaxSessions < 0 {
		errs = append(errs, errors.New("server.max_sessions must not be negative"))
	}
	if c.History.Path == "" {
		errs = append(errs, errors.New("history.path is required"))
	}
	if c.History.MaxEntries < 0 {
		errs = append(errs, errors.New("history.max_entries must not be negative"))
	}
	if c.History.Retention < 0 {
		errs = append(errs, errors.New("history.retention must not be negative"))
	}
	if c.Explore.CacheSize < 0 {
		errs = append(errs, errors.New("explore.cache_size must not be negative"))
	}
	if c.Explore.MaxRows < 0 {
		errs = append(errs, errors.New("explore.max_rows must not be negative"))
	}
	if c.Explore.QueryTimeout < 0 {
		errs = append(errs, errors.New("explore.query_timeout must not be negative"))
	}
	if _, err := timerange.ResolveZone(c.Explore.DefaultTimezone, nil); err != nil {
		errs = append(errs, fmt.Errorf("explore.default_timezone: %w", err))
	}
	if !ValidOutput(c.OutputFormat) {
		errs = append(errs, fmt.Errorf("output %q is not one of %s", c.OutputFormat, strings.Join(OutputFormats, ", ")))
	}
	for i := range c.Datasources {
		if err := ValidateDatasource(c.Datasources[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ValidateDatasource checks that a datasource names a registered adapter type.
func ValidateDatasource(ds DatasourceConfig) error {
	if ds.Name == "" {
		return errors.New("datasource name is required")
	}
	if ds.Type == "" {
		return fmt.Errorf("datasource %q: type is required", ds.Name)
	}
	if !adapter.IsRegistered(strings.ToLower(ds.Type)) {
		return fmt.Errorf("datasource %q: unknown adapter type %q (available: %s)\nHint: check the datasources section of %s",
			ds.Name, ds.Type, strings.Join(adapter.ListAdapters(), ", "), DefaultConfigFile)
	}
	return nil
}
