package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey is used to store the logger in a context.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// flagKeys maps flag names whose config key differs from the snake_cased name.
var flagKeys = map[string]string{
	"org":              "org_id",
	"history":          "history.path",
	"provisioning-dir": "provisioning_dir",
}

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// configExistsIn checks if a leapexplore config file exists in the directory.
func configExistsIn(dir string) string {
	for _, name := range []string{"leapexplore.yaml", "leapexplore.yml"} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findConfigUpward searches upward from startDir for a leapexplore config file.
func findConfigUpward(startDir string) string {
	dir := startDir
	for range maxUpwardSearchLevels {
		if found := configExistsIn(dir); found != "" {
			return found
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Empty, absolute and ":memory:" paths are returned unchanged.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

func defaults() map[string]any {
	d := Default()
	return map[string]any{
		"server.port":                 d.Server.Port,
		"server.auto_open":            d.Server.AutoOpen,
		"server.session_idle_timeout": d.Server.SessionIdleTimeout.String(),
		"server.max_sessions":         d.Server.MaxSessions,
		"history.path":                d.History.Path,
		"history.max_entries":         d.History.MaxEntries,
		"history.retention":           d.History.Retention.String(),
		"explore.cache_size":          d.Explore.CacheSize,
		"explore.max_rows":            d.Explore.MaxRows,
		"explore.query_timeout":       d.Explore.QueryTimeout.String(),
		"explore.default_timezone":    d.Explore.DefaultTimezone,
		"explore.fallback_to_default": d.Explore.FallbackToDefault,
		"org_id":                      d.OrgID,
		"login":                       d.Login,
		"verbose":                     false,
		"output":                      d.OutputFormat,
	}
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
// Without an explicit cfgFile, leapexplore.yaml is searched upward from the
// working directory. Relative paths resolve against the config file's
// directory, or the working directory when no file is used.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")

	// 1. Load defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	configFileUsed = cfgFile
	if configFileUsed == "" {
		configFileUsed = findConfigUpward(cwd)
	}
	projectRoot := cwd
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
		if abs, err := filepath.Abs(configFileUsed); err == nil {
			projectRoot = filepath.Dir(abs)
		}
	}

	// 3. Load environment variables
	// Transform: LEAPEXPLORE_HISTORY__MAX_ENTRIES -> history.max_entries
	if err := k.Load(env.Provider(environmentPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, environmentPrefix))
		return strings.ReplaceAll(key, environmentKeySplitter, ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority)
	var flagPaths map[string]bool
	if flags != nil {
		flagPaths = make(map[string]bool)
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			if key == "history.path" || key == "provisioning_dir" {
				flagPaths[key] = true
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectRoot = projectRoot

	// 6. Resolve relative paths. Flag values are relative to the working directory.
	cfg.History.Path = resolvePath(cfg.History.Path, projectRoot, cwd, flagPaths["history.path"])
	cfg.ProvisioningDir = resolvePath(cfg.ProvisioningDir, projectRoot, cwd, flagPaths["provisioning_dir"])

	for i := range cfg.Datasources {
		expandDatasourceEnvVars(&cfg.Datasources[i])
		if strings.EqualFold(cfg.Datasources[i].Type, "duckdb") {
			cfg.Datasources[i].Database = resolvePathRelativeTo(cfg.Datasources[i].Database, projectRoot)
		}
	}
	if len(cfg.Datasources) == 0 && cfg.ProvisioningDir == "" {
		ds := DefaultDatasource()
		ds.OrgID = cfg.OrgID
		cfg.Datasources = []DatasourceConfig{ds}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	currentConfig = &cfg
	return &cfg, nil
}

func resolvePath(path, projectRoot, cwd string, fromFlag bool) string {
	if fromFlag {
		return resolvePathRelativeTo(path, cwd)
	}
	return resolvePathRelativeTo(path, projectRoot)
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the configuration loaded by the last LoadConfig call.
func GetCurrentConfig() *Config {
	return currentConfig
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
// Unknown variables are left untouched.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val := os.Getenv(match[2 : len(match)-1]); val != "" {
			return val
		}
		return match
	})
}

// expandDatasourceEnvVars expands environment variables in connection fields.
func expandDatasourceEnvVars(ds *DatasourceConfig) {
	ds.Password = expandEnvVars(ds.Password)
	ds.User = expandEnvVars(ds.User)
	ds.Host = expandEnvVars(ds.Host)
	ds.Database = expandEnvVars(ds.Database)
}
