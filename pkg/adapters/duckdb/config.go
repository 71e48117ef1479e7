package duckdb

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Params holds DuckDB-specific configuration.
// Parsed from adapter.Config.Params using mapstructure.
type Params struct {
	// Extensions to install and load (e.g., "httpfs", "spatial", "json")
	Extensions []string `mapstructure:"extensions"`

	// Settings to apply at session level (e.g., memory_limit, threads)
	Settings map[string]string `mapstructure:"settings"`

	// ReadOnly opens file databases in read-only mode so explore panes
	// can share a database with a running writer.
	ReadOnly bool `mapstructure:"read_only"`
}

// ParseParams decodes the free-form adapter params into Params.
func ParseParams(raw map[string]any) (*Params, error) {
	p := &Params{}
	if len(raw) == 0 {
		return p, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           p,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create params decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid duckdb params: %w", err)
	}
	return p, nil
}
