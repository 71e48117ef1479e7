package core

// DatasourceConfig describes one configured datasource.
type DatasourceConfig struct {
	UID       string `koanf:"uid" yaml:"uid"`
	Name      string `koanf:"name" yaml:"name"`
	Type      string `koanf:"type" yaml:"type"` // duckdb, postgres
	IsDefault bool   `koanf:"is_default" yaml:"is_default"`
	OrgID     int64  `koanf:"org_id" yaml:"org_id"`

	// File-based databases (DuckDB)
	Database string `koanf:"database" yaml:"database"`

	// Network databases
	Host     string `koanf:"host" yaml:"host"`
	Port     int    `koanf:"port" yaml:"port"`
	User     string `koanf:"user" yaml:"user"`
	Password string `koanf:"password" yaml:"password"`

	Schema string `koanf:"schema" yaml:"schema"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options" yaml:"options"`

	// Params holds adapter-specific configuration (e.g., DuckDB extensions, settings)
	Params map[string]any `koanf:"params" yaml:"params"`
}

// AdapterConfig converts the datasource config into an adapter connection config.
func (c DatasourceConfig) AdapterConfig() AdapterConfig {
	return AdapterConfig{
		Type:     c.Type,
		Path:     c.Database,
		Database: c.Database,
		Schema:   c.Schema,
		Host:     c.Host,
		Port:     c.Port,
		Username: c.User,
		Password: c.Password,
		Options:  c.Options,
		Params:   c.Params,
	}
}
