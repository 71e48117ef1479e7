package richhistory

import (
	"github.com/leapstack-labs/leapexplore/internal/explore"
	"github.com/leapstack-labs/leapexplore/pkg/core"
)

// ListSignals selects the pane and, optionally, new search filters.
type ListSignals struct {
	Pane    explore.ExploreID              `json:"pane"`
	Filters *core.RichHistorySearchFilters `json:"filters"`
}

// StarSignals stars or unstars an entry.
type StarSignals struct {
	Pane    explore.ExploreID `json:"pane"`
	Starred bool              `json:"starred"`
}

// CommentSignals sets the comment of an entry.
type CommentSignals struct {
	Pane    explore.ExploreID `json:"pane"`
	Comment string            `json:"comment"`
}

// View is the rich history of one pane as patched into the client.
type View struct {
	Pane    explore.ExploreID             `json:"pane"`
	Entries []core.RichHistoryQuery       `json:"entries"`
	Total   int                           `json:"total"`
	Filters core.RichHistorySearchFilters `json:"filters"`
}

type viewSignals struct {
	RichHistory View `json:"richHistory"`
}
