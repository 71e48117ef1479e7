package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/leapstack-labs/leapexplore/internal/cli/config"
	"github.com/leapstack-labs/leapexplore/pkg/core"
)

// ConfigField is one documented configuration key.
type ConfigField struct {
	Key         string
	Type        string
	Default     string
	Description string
}

// configDescriptions documents keys; reflection supplies types and defaults.
var configDescriptions = map[string]string{
	"server.port":                 "Port of the explore UI server",
	"server.session_secret":       "Cookie signing secret; a random one is generated per run when empty",
	"server.auto_open":            "Open the browser when the server starts",
	"server.session_idle_timeout": "Close explore sessions without requests or open streams for this long",
	"server.max_sessions":         "Maximum live explore sessions; the least recently used idle one is closed first",
	"history.path":                "SQLite database holding the rich history",
	"history.max_entries":         "Entries kept per organization; starred entries are never evicted",
	"history.retention":           "Age beyond which unstarred entries are removed; 0 disables cleanup",
	"explore.cache_size":          "Query results cached per pane",
	"explore.max_rows":            "Rows returned per query before the frame is truncated",
	"explore.query_timeout":       "Timeout of a single query; 0 disables it",
	"explore.default_timezone":    "Zone used to resolve time ranges: browser, utc or an IANA name",
	"explore.fallback_to_default": "Resolve unknown datasource references to the org default",
	"datasources":                 "Datasources; see the datasource fields below",
	"provisioning_dir":            "Directory of datasource provisioning YAML files, watched by serve",
	"org_id":                      "Organization the CLI acts in",
	"login":                       "Login recorded with sessions",
	"verbose":                     "Verbose logging",
	"output":                      "Default output format: table, json, csv or md",
}

var datasourceDescriptions = map[string]string{
	"uid":        "Stable identifier; derived from the name when empty",
	"name":       "Display name, unique per organization",
	"type":       "Adapter type: duckdb or postgres",
	"is_default": "Default datasource of the organization",
	"org_id":     "Owning organization; 1 when empty",
	"database":   "DuckDB file (:memory: for in-memory) or PostgreSQL database name",
	"host":       "Database host",
	"port":       "Database port",
	"user":       "Database user; ${VAR} is expanded",
	"password":   "Database password; ${VAR} is expanded",
	"schema":     "Default schema",
	"options":    "Driver options",
	"params":     "Adapter parameters, such as DuckDB extensions and settings",
}

// generateConfigDocs writes the leapexplore.yaml reference.
func generateConfigDocs(outDir string) error {
	log.Printf("Generating config docs to %s", outDir)
	if err := os.MkdirAll(outDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	w := NewMarkdownWriter()
	w.Frontmatter("Configuration", "leapexplore.yaml reference")
	w.GeneratedMarker()
	w.Header(1, "Configuration")
	w.Paragraph(fmt.Sprintf("LeapExplore reads %s from the working directory or its closest parent. Values are layered: defaults, the file, environment variables, then command-line flags.", InlineCode(config.DefaultConfigFile)))

	w.Header(2, "Keys")
	w.Table([]string{"Key", "Type", "Default", "Description"}, fieldRows(configFields(reflect.ValueOf(*config.Default()), "", configDescriptions)))

	w.Header(2, "Datasource Fields")
	w.Table([]string{"Field", "Type", "Default", "Description"}, fieldRows(configFields(reflect.ValueOf(core.DatasourceConfig{}), "", datasourceDescriptions)))

	w.Header(2, "Example")
	w.CodeBlock("yaml", `server:
  port: 8765
history:
  retention: 336h
explore:
  default_timezone: Europe/Berlin
datasources:
  - name: Warehouse
    type: duckdb
    database: ./warehouse.duckdb
    is_default: true
  - name: Analytics
    type: postgres
    host: localhost
    database: analytics
    user: ${PGUSER}
    password: ${PGPASSWORD}`)

	return os.WriteFile(filepath.Join(outDir, "configuration.md"), w.Bytes(), 0600)
}

// configFields walks v by koanf tag, flattening nested structs into dotted keys.
func configFields(v reflect.Value, prefix string, descriptions map[string]string) []ConfigField {
	var fields []ConfigField
	t := v.Type()
	for i := range t.NumField() {
		sf := t.Field(i)
		tag := strings.Split(sf.Tag.Get("koanf"), ",")[0]
		if tag == "" || tag == "-" || !sf.IsExported() {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		fv := v.Field(i)
		if fv.Kind() == reflect.Struct && fv.Type() != reflect.TypeOf(time.Duration(0)) {
			fields = append(fields, configFields(fv, key, descriptions)...)
			continue
		}
		fields = append(fields, ConfigField{
			Key:         key,
			Type:        typeName(fv.Type()),
			Default:     defaultValue(fv),
			Description: descriptions[key],
		})
	}
	return fields
}

func typeName(t reflect.Type) string {
	switch {
	case t == reflect.TypeOf(time.Duration(0)):
		return "duration"
	case t.Kind() == reflect.Slice:
		return "list"
	case t.Kind() == reflect.Map:
		return "map"
	case t.Kind() == reflect.Int, t.Kind() == reflect.Int64:
		return "int"
	default:
		return t.Kind().String()
	}
}

func defaultValue(v reflect.Value) string {
	if v.IsZero() {
		return ""
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Map:
		return ""
	}
	if d, ok := v.Interface().(time.Duration); ok {
		return d.String()
	}
	return fmt.Sprintf("%v", v.Interface())
}

func fieldRows(fields []ConfigField) [][]string {
	rows := make([][]string, 0, len(fields))
	for _, f := range fields {
		def := f.Default
		if def != "" {
			def = InlineCode(def)
		}
		rows = append(rows, []string{InlineCode(f.Key), f.Type, def, f.Description})
	}
	return rows
}
