package explore

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/leapexplore/pkg/core"
)

// MaxHistoryItems bounds a pane's local query history.
const MaxHistoryItems = 100

// RunnerConfig configures the QueryRunner effect.
type RunnerConfig struct {
	// CacheSize bounds the pane cache; non-positive uses DefaultCacheSize.
	CacheSize int
	// History receives one rich history entry per successful run. Optional.
	History RichHistory
	Now     func() time.Time
	Logger  *slog.Logger
}

// QueryRunner returns the effect executing RunQueries actions. Cached results
// are served synchronously; otherwise the pane is marked Loading and the
// queries run in a goroutine owned by the store.
func QueryRunner(cfg RunnerConfig) Effect {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	return func(_ context.Context, action Action, s *Store) {
		run, ok := action.(RunQueriesAction)
		if !ok {
			return
		}
		id := run.Pane()
		state := s.State()
		pane, ok := state.Pane(id)
		if !ok || pane.Datasource == nil {
			return
		}
		queries := runnable(pane.Queries)
		if len(queries) == 0 {
			return
		}

		ds := pane.Datasource
		key := CacheKey(pane.AbsoluteRange, ds.UID(), pane.Queries)
		if cached, ok := pane.CachedResponse(key); ok {
			cfg.Logger.Debug("serving cached results", "pane", id, "key", key)
			s.Dispatch(QueryStreamUpdated(id, cached))
			return
		}

		runID := uuid.NewString()
		s.Dispatch(QueryRunUpdated(id, runID, core.QueryResponse{
			State:     core.LoadingStateLoading,
			Series:    []core.Frame{},
			TimeRange: pane.Range,
		}))

		orgID := state.User.OrgID
		s.Go(func(ctx context.Context) {
			resp := execute(ctx, ds, queries, pane.Range)

			s.Dispatch(QueryRunUpdated(id, runID, resp))
			current, ok := s.Pane(id)
			if !ok || current.QueryRun != runID {
				cfg.Logger.Debug("dropping stale results", "pane", id, "key", key)
				return
			}
			if resp.State != core.LoadingStateDone {
				return
			}
			s.Dispatch(AddResultsToCache(id, key, resp, cfg.CacheSize))
			s.Dispatch(AppendHistory(id, queries, cfg.Now()))

			if cfg.History == nil {
				return
			}
			_, err := cfg.History.Add(ctx, core.RichHistoryQuery{
				OrgID:          orgID,
				DatasourceUID:  ds.UID(),
				DatasourceName: ds.Name(),
				Queries:        queries,
			})
			if err != nil {
				cfg.Logger.Warn("failed to save rich history", "pane", id, "error", err)
			}
		})
	}
}

// runnable returns the visible queries with a non-blank expression.
func runnable(queries []core.DataQuery) []core.DataQuery {
	out := make([]core.DataQuery, 0, len(queries))
	for _, q := range queries {
		if q.Hide || strings.TrimSpace(q.Expr) == "" {
			continue
		}
		out = append(out, q)
	}
	return out
}

func execute(ctx context.Context, ds Instance, queries []core.DataQuery, tr core.TimeRange) core.QueryResponse {
	start := time.Now()
	resp := core.QueryResponse{
		State:     core.LoadingStateDone,
		Series:    make([]core.Frame, 0, len(queries)),
		TimeRange: tr,
	}
	for _, q := range queries {
		frame, err := ds.Query(ctx, q, tr)
		if err != nil {
			resp.State = core.LoadingStateError
			resp.Errors = append(resp.Errors, core.QueryError{RefID: q.RefID, Message: err.Error()})
			continue
		}
		frame.RefID = q.RefID
		resp.Series = append(resp.Series, frame)
	}
	resp.Duration = time.Since(start)
	return resp
}

// AddToHistory prepends queries to history, newest first. Older entries with
// the same expression are dropped and the result holds at most
// MaxHistoryItems entries.
func AddToHistory(history []core.HistoryItem, queries []core.DataQuery, ts time.Time) []core.HistoryItem {
	out := make([]core.HistoryItem, 0, min(len(history)+len(queries), MaxHistoryItems))
	seen := make(map[string]bool, len(queries))
	for _, q := range queries {
		expr := strings.TrimSpace(q.Expr)
		if seen[expr] || len(out) == MaxHistoryItems {
			continue
		}
		seen[expr] = true
		out = append(out, core.HistoryItem{TS: ts, Query: q})
	}
	for _, h := range history {
		if len(out) == MaxHistoryItems {
			break
		}
		if seen[strings.TrimSpace(h.Query.Expr)] {
			continue
		}
		out = append(out, h)
	}
	return slices.Clip(out)
}
