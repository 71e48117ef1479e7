package core

import (
	"context"
	"time"
)

// DataSourceRef identifies a datasource either by UID, by name, or both.
// A ref with only Type set matches nothing.
type DataSourceRef struct {
	UID  string `json:"uid,omitempty"`
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

// IsZero reports whether the ref carries no identifier.
func (r *DataSourceRef) IsZero() bool {
	return r == nil || (r.UID == "" && r.Name == "")
}

// String returns the most specific identifier of the ref.
func (r DataSourceRef) String() string {
	if r.UID != "" {
		return r.UID
	}
	return r.Name
}

// DataQuery is a single query row of an explore pane.
type DataQuery struct {
	// RefID labels the query within a pane ("A", "B", ...).
	RefID string `json:"refId"`
	// Key is a stable unique key assigned once per query row.
	Key string `json:"key,omitempty"`
	// Datasource overrides the pane datasource when set.
	Datasource *DataSourceRef `json:"datasource,omitempty"`
	// Expr is the query text, SQL for the bundled adapters.
	Expr string `json:"expr"`
	// Hide excludes the query from execution.
	Hide bool `json:"hide,omitempty"`
	// MaxRows overrides the datasource row cap when positive.
	MaxRows int `json:"maxRows,omitempty"`
}

// LoadingState describes the lifecycle of a query response.
type LoadingState string

// Loading states.
const (
	LoadingStateNotStarted LoadingState = "NotStarted"
	LoadingStateLoading    LoadingState = "Loading"
	LoadingStateDone       LoadingState = "Done"
	LoadingStateError      LoadingState = "Error"
)

// Frame is the tabular result of one query.
type Frame struct {
	RefID     string   `json:"refId"`
	Name      string   `json:"name,omitempty"`
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated,omitempty"`
}

// QueryError reports a failure of one query row.
type QueryError struct {
	RefID   string `json:"refId,omitempty"`
	Message string `json:"message"`
}

// QueryResponse is the result of running all queries of a pane.
type QueryResponse struct {
	State     LoadingState  `json:"state"`
	Series    []Frame       `json:"series"`
	Errors    []QueryError  `json:"errors,omitempty"`
	TimeRange TimeRange     `json:"timeRange"`
	Duration  time.Duration `json:"duration"`
}

// EmptyQueryResponse returns a response in the NotStarted state.
func EmptyQueryResponse() QueryResponse {
	return QueryResponse{
		State:  LoadingStateNotStarted,
		Series: []Frame{},
	}
}

// Instance is a live, resolved handle to a datasource.
type Instance interface {
	UID() string
	Name() string
	Type() string
	Query(ctx context.Context, q DataQuery, tr TimeRange) (Frame, error)
}
