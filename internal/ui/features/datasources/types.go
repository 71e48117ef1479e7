package datasources

import (
	"github.com/leapstack-labs/leapexplore/internal/datasource"
	"github.com/leapstack-labs/leapexplore/pkg/core"
)

// Item is one datasource as shown to clients. Credentials are never sent.
type Item struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	IsDefault bool   `json:"isDefault"`
}

// CheckItem is the health of one datasource.
type CheckItem struct {
	Item
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"durationMs"`
}

// Table describes one table of a datasource, shown next to the query editor.
type Table struct {
	Datasource string        `json:"datasource"`
	Schema     string        `json:"schema"`
	Name       string        `json:"name"`
	RowCount   int64         `json:"rowCount"`
	Columns    []TableColumn `json:"columns"`
}

// TableColumn is one column of a Table.
type TableColumn struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

type tableSignals struct {
	DatasourceTable Table `json:"datasourceTable"`
}

type listSignals struct {
	Datasources []Item `json:"datasources"`
}

type checkSignals struct {
	DatasourceChecks []CheckItem `json:"datasourceChecks"`
}

func toItem(s datasource.Settings) Item {
	return Item{
		UID:       s.UID,
		Name:      s.Name,
		Type:      s.Type,
		IsDefault: s.IsDefault,
	}
}

func toTable(uid string, meta *core.TableMetadata) Table {
	t := Table{
		Datasource: uid,
		Schema:     meta.Schema,
		Name:       meta.Name,
		RowCount:   meta.RowCount,
		Columns:    make([]TableColumn, len(meta.Columns)),
	}
	for i, col := range meta.Columns {
		t.Columns[i] = TableColumn{Name: col.Name, Type: col.Type, Nullable: col.Nullable}
	}
	return t
}
