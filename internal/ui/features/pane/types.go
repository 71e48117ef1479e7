package pane

import (
	"github.com/leapstack-labs/leapexplore/internal/explore"
	"github.com/leapstack-labs/leapexplore/pkg/core"
)

// InitSignals opens a pane.
type InitSignals struct {
	Datasource  *core.DataSourceRef           `json:"datasource"`
	Queries     []core.DataQuery              `json:"queries"`
	Range       core.RawTimeRange             `json:"range"`
	PanelsState map[string]explore.PanelState `json:"panelsState"`
}

// ResizeSignals reports the width of the pane container.
type ResizeSignals struct {
	Width int `json:"width"`
}

// PanelsSignals updates panel layout. With Panel set only that panel is
// merged, otherwise Panels replaces the whole layout.
type PanelsSignals struct {
	Panel  string                        `json:"panel"`
	State  explore.PanelState            `json:"state"`
	Panels map[string]explore.PanelState `json:"panels"`
}

// QueriesSignals replaces the query rows.
type QueriesSignals struct {
	Queries []core.DataQuery `json:"queries"`
}

// RowSignals inserts a query row at Index.
type RowSignals struct {
	Index int            `json:"index"`
	Query core.DataQuery `json:"query"`
}

// RangeSignals changes the time range and refresh interval.
type RangeSignals struct {
	Range           core.RawTimeRange `json:"range"`
	RefreshInterval string            `json:"refreshInterval"`
}

// DatasourceSignals binds a datasource.
type DatasourceSignals struct {
	Datasource core.DataSourceRef `json:"datasource"`
}

// paneSignals is the shape patched into the client: explore.<paneID>.
type paneSignals struct {
	Explore map[explore.ExploreID]*explore.PaneSnapshot `json:"explore"`
}
