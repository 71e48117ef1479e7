package core

import "time"

// HistoryItem is one entry of a pane's local query history.
type HistoryItem struct {
	TS    time.Time `json:"ts"`
	Query DataQuery `json:"query"`
}

// RichHistoryQuery is a persisted record of an executed set of queries.
type RichHistoryQuery struct {
	ID             string      `json:"id"`
	OrgID          int64       `json:"orgId"`
	CreatedAt      time.Time   `json:"createdAt"`
	DatasourceUID  string      `json:"datasourceUid"`
	DatasourceName string      `json:"datasourceName"`
	Starred        bool        `json:"starred"`
	Comment        string      `json:"comment"`
	Queries        []DataQuery `json:"queries"`
}

// SortOrder controls the ordering of rich history search results.
type SortOrder string

// Sort orders.
const (
	SortOrderNewest       SortOrder = "newest"
	SortOrderOldest       SortOrder = "oldest"
	SortOrderDatasourceAZ SortOrder = "datasource-az"
	SortOrderDatasourceZA SortOrder = "datasource-za"
)

// RichHistorySearchFilters narrows a rich history search.
type RichHistorySearchFilters struct {
	Search      string    `json:"search"`
	SortOrder   SortOrder `json:"sortOrder"`
	Datasources []string  `json:"datasources"`
	// From and To are in days ago; To=0 means today.
	From     int  `json:"from"`
	To       int  `json:"to"`
	Starred  bool `json:"starred"`
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
}

// DefaultRichHistorySearchFilters returns the filters used by a fresh pane.
func DefaultRichHistorySearchFilters() RichHistorySearchFilters {
	return RichHistorySearchFilters{
		SortOrder: SortOrderNewest,
		From:      0,
		To:        7,
		Page:      1,
		PageSize:  100,
	}
}
