package explore

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapexplore/pkg/core"
	"github.com/zeebo/blake3"
)

// QueryKeys derives one stable key per query row. Rows carrying a Key use it,
// otherwise the key falls back to the row's datasource.
func QueryKeys(queries []core.DataQuery) []string {
	keys := make([]string, len(queries))
	for i, q := range queries {
		prefix := "explore"
		switch {
		case q.Key != "":
			prefix = q.Key
		case !q.Datasource.IsZero():
			prefix = q.Datasource.String()
		}
		keys[i] = fmt.Sprintf("%s-%d", prefix, i)
	}
	return keys
}

// EnsureQueries returns a copy of queries in which every row has a RefID and a
// Key. An empty list yields a single blank row.
func EnsureQueries(queries []core.DataQuery) []core.DataQuery {
	if len(queries) == 0 {
		return []core.DataQuery{{RefID: refID(0), Key: uuid.NewString()}}
	}
	out := make([]core.DataQuery, len(queries))
	used := make(map[string]bool, len(queries))
	for _, q := range queries {
		if q.RefID != "" {
			used[q.RefID] = true
		}
	}
	next := 0
	for i, q := range queries {
		if q.RefID == "" {
			for used[refID(next)] {
				next++
			}
			q.RefID = refID(next)
			used[q.RefID] = true
		}
		if q.Key == "" {
			q.Key = uuid.NewString()
		}
		out[i] = q
	}
	return out
}

// refID returns A..Z, then AA, AB, ...
func refID(n int) string {
	s := ""
	for n >= 0 {
		s = string(rune('A'+n%26)) + s
		n = n/26 - 1
	}
	return s
}

// cacheKeyInput is the canonical form hashed into a cache key.
type cacheKeyInput struct {
	Range      core.AbsoluteRange `json:"range"`
	Datasource string             `json:"datasource"`
	Queries    []cacheKeyQuery    `json:"queries"`
}

type cacheKeyQuery struct {
	RefID      string `json:"refId"`
	Datasource string `json:"datasource,omitempty"`
	Expr       string `json:"expr"`
	MaxRows    int    `json:"maxRows,omitempty"`
}

// CacheKey identifies the results of running queries over a range against a
// datasource. Hidden rows and row keys do not affect the key.
func CacheKey(rng core.AbsoluteRange, datasourceUID string, queries []core.DataQuery) string {
	in := cacheKeyInput{Range: rng, Datasource: datasourceUID, Queries: []cacheKeyQuery{}}
	for _, q := range queries {
		if q.Hide {
			continue
		}
		cq := cacheKeyQuery{RefID: q.RefID, Expr: q.Expr, MaxRows: q.MaxRows}
		if !q.Datasource.IsZero() {
			cq.Datasource = q.Datasource.String()
		}
		in.Queries = append(in.Queries, cq)
	}
	// Marshalling plain structs of strings and ints cannot fail.
	data, _ := json.Marshal(in)
	sum := blake3.Sum256(data)
	return fmt.Sprintf("%x", sum[:16])
}
