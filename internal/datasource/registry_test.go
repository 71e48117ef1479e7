package datasource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapexplore/pkg/core"

	// Register adapters used by the settings below.
	_ "github.com/leapstack-labs/leapexplore/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapexplore/pkg/adapters/postgres"
)

func testSettings() []Settings {
	return []Settings{
		{Name: "Warehouse", Type: "DuckDB", Database: ":memory:"},
		{UID: "pg-main", Name: "Postgres", Type: "postgres", Host: "localhost", IsDefault: true},
		{UID: "other", Name: "Other org", Type: "duckdb", OrgID: 2},
	}
}

func TestRegistry_Get(t *testing.T) {
	r, err := NewRegistry(testSettings())
	require.NoError(t, err)

	tests := []struct {
		name    string
		org     int64
		ref     core.DataSourceRef
		wantUID string
		wantErr bool
	}{
		{"by uid", 1, core.DataSourceRef{UID: "pg-main"}, "pg-main", false},
		{"by name case insensitive", 1, core.DataSourceRef{Name: "warehouse"}, "warehouse", false},
		{"derived uid", 1, core.DataSourceRef{UID: "warehouse"}, "warehouse", false},
		{"plain string matches name", 1, Ref(" Postgres "), "pg-main", false},
		{"other org is invisible", 1, core.DataSourceRef{UID: "other"}, "", true},
		{"org 2", 2, core.DataSourceRef{UID: "other"}, "other", false},
		{"type only matches nothing", 1, core.DataSourceRef{Type: "duckdb"}, "", true},
		{"unknown", 1, core.DataSourceRef{Name: "missing"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Get(tt.org, tt.ref)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUID, got.UID)
		})
	}
}

func TestRegistry_DefaultAndList(t *testing.T) {
	r, err := NewRegistry(testSettings())
	require.NoError(t, err)

	def, err := r.Default(1)
	require.NoError(t, err)
	assert.Equal(t, "pg-main", def.UID)

	def, err = r.Default(2)
	require.NoError(t, err)
	assert.Equal(t, "other", def.UID, "first by name when none is flagged")

	_, err = r.Default(9)
	assert.ErrorIs(t, err, ErrNotFound)

	list := r.List(1)
	require.Len(t, list, 2)
	assert.Equal(t, "Postgres", list[0].Name)
	assert.Equal(t, "duckdb", list[1].Type, "types are normalized")
	assert.Equal(t, DefaultOrgID, list[1].OrgID)
}

func TestRegistry_Validation(t *testing.T) {
	tests := []struct {
		name     string
		settings []Settings
		errMsg   string
	}{
		{"missing name", []Settings{{Type: "duckdb"}}, "name is required"},
		{"missing type", []Settings{{Name: "a"}}, "type is required"},
		{"unknown type", []Settings{{Name: "a", Type: "oracle"}}, "unknown adapter type"},
		{"duplicate uid", []Settings{{UID: "x", Name: "a", Type: "duckdb"}, {UID: "x", Name: "b", Type: "duckdb"}}, "duplicate uid"},
		{"duplicate name", []Settings{{Name: "a", Type: "duckdb"}, {UID: "z", Name: "A", Type: "duckdb"}}, "duplicate name"},
		{"two defaults", []Settings{{Name: "a", Type: "duckdb", IsDefault: true}, {Name: "b", Type: "duckdb", IsDefault: true}}, "both default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.settings)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestRegistry_ReplaceKeepsStateOnError(t *testing.T) {
	r, err := NewRegistry(testSettings())
	require.NoError(t, err)

	require.Error(t, r.Replace([]Settings{{Name: "broken"}}))
	assert.Len(t, r.List(1), 2)

	require.NoError(t, r.Replace(nil))
	assert.Empty(t, r.List(1))
}

func TestMerge(t *testing.T) {
	base := []Settings{
		{UID: "a", Name: "A", Type: "duckdb"},
		{UID: "b", Name: "B", Type: "duckdb"},
	}
	merged := Merge(base, []Settings{
		{UID: "b", Name: "B2", Type: "postgres", OrgID: 1},
		{UID: "c", Name: "C", Type: "duckdb"},
	})

	require.Len(t, merged, 3)
	assert.Equal(t, "B2", merged[1].Name, "org 0 and org 1 are the same org")
	assert.Equal(t, "C", merged[2].Name)
	assert.Equal(t, "B", base[1].Name, "base must not be modified")
}
