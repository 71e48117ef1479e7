// Package config provides configuration management for the LeapExplore CLI.
//
// Configuration is layered: built-in defaults, then leapexplore.yaml, then
// LEAPEXPLORE_ environment variables, then explicitly set command-line flags.
// Datasource settings reuse core.DatasourceConfig so the same YAML shape is
// accepted by the config file and by provisioning files.
package config

import (
	"time"

	"github.com/leapstack-labs/leapexplore/pkg/core"
)

// Default values.
const (
	DefaultConfigFile      = "leapexplore.yaml"
	DefaultHistoryFile     = ".leapexplore/history.db"
	DefaultPort            = 8765
	DefaultSessionIdle     = 30 * time.Minute
	DefaultMaxSessions     = 1000
	DefaultMaxEntries      = 10000
	DefaultRetention       = 14 * 24 * time.Hour
	DefaultCacheSize       = 5
	DefaultMaxRows         = 1000
	DefaultQueryTimeout    = 30 * time.Second
	DefaultOrgID           = 1
	DefaultLogin           = "admin"
	DefaultOutput          = "table"
	DefaultTimezone        = "browser"
	DefaultDatasourceUID   = "memory"
	DefaultDatasourceName  = "Memory"
	DefaultDatasourceType  = "duckdb"
	environmentPrefix      = "LEAPEXPLORE_"
	environmentKeySplitter = "__"
)

// DatasourceConfig is an alias for the shared datasource configuration.
type DatasourceConfig = core.DatasourceConfig

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Port          int    `koanf:"port"`
	SessionSecret string `koanf:"session_secret"`
	AutoOpen      bool   `koanf:"auto_open"`

	// SessionIdleTimeout closes explore sessions without requests or streams for that long.
	SessionIdleTimeout time.Duration `koanf:"session_idle_timeout"`
	MaxSessions        int           `koanf:"max_sessions"`
}

// HistoryConfig holds configuration for the rich history database.
type HistoryConfig struct {
	Path       string        `koanf:"path"`
	MaxEntries int           `koanf:"max_entries"`
	Retention  time.Duration `koanf:"retention"`
}

// ExploreConfig holds configuration for explore panes.
type ExploreConfig struct {
	CacheSize       int           `koanf:"cache_size"`
	MaxRows         int           `koanf:"max_rows"`
	QueryTimeout    time.Duration `koanf:"query_timeout"`
	DefaultTimezone string        `koanf:"default_timezone"`
	// FallbackToDefault resolves unknown datasource references to the org default.
	FallbackToDefault bool `koanf:"fallback_to_default"`
}

// Config holds all CLI configuration options.
type Config struct {
	Server          ServerConfig       `koanf:"server"`
	History         HistoryConfig      `koanf:"history"`
	Explore         ExploreConfig      `koanf:"explore"`
	Datasources     []DatasourceConfig `koanf:"datasources"`
	ProvisioningDir string             `koanf:"provisioning_dir"`
	OrgID           int64              `koanf:"org_id"`
	Login           string             `koanf:"login"`
	Verbose         bool               `koanf:"verbose"`
	OutputFormat    string             `koanf:"output"`

	// ProjectRoot is the directory relative paths were resolved against.
	ProjectRoot string `koanf:"-"`
}

// DefaultDatasource is the datasource used when none is configured.
func DefaultDatasource() DatasourceConfig {
	return DatasourceConfig{
		UID:       DefaultDatasourceUID,
		Name:      DefaultDatasourceName,
		Type:      DefaultDatasourceType,
		IsDefault: true,
		OrgID:     DefaultOrgID,
		Database:  ":memory:",
	}
}

// Default returns the configuration used when nothing is loaded.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               DefaultPort,
			SessionIdleTimeout: DefaultSessionIdle,
			MaxSessions:        DefaultMaxSessions,
		},
		History: HistoryConfig{
			Path:       DefaultHistoryFile,
			MaxEntries: DefaultMaxEntries,
			Retention:  DefaultRetention,
		},
		Explore: ExploreConfig{
			CacheSize:         DefaultCacheSize,
			MaxRows:           DefaultMaxRows,
			QueryTimeout:      DefaultQueryTimeout,
			DefaultTimezone:   DefaultTimezone,
			FallbackToDefault: true,
		},
		Datasources:  []DatasourceConfig{DefaultDatasource()},
		OrgID:        DefaultOrgID,
		Login:        DefaultLogin,
		OutputFormat: DefaultOutput,
	}
}
