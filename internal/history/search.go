package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/leapexplore/pkg/core"
)

// Search returns one page of the org's entries matching filters, and the
// total number of matching entries.
func (s *SQLiteStore) Search(ctx context.Context, orgID int64, f core.RichHistorySearchFilters) ([]core.RichHistoryQuery, int, error) {
	if s.db == nil {
		return nil, 0, fmt.Errorf("database not opened")
	}
	where, args := s.whereClause(orgID, f)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rich_history WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count rich history: %w", err)
	}

	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = core.DefaultRichHistorySearchFilters().PageSize
	}
	query := `SELECT ` + columns + ` FROM rich_history WHERE ` + where +
		` ORDER BY ` + orderBy(f.SortOrder) + ` LIMIT ? OFFSET ?`
	args = append(args, size, (page-1)*size)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search rich history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []core.RichHistoryQuery{}
	for rows.Next() {
		q, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, q)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// whereClause builds the filter predicate. From and To are days ago:
// entries created between the start of day To and the end of day From match.
// Both zero disables the time filter.
func (s *SQLiteStore) whereClause(orgID int64, f core.RichHistorySearchFilters) (string, []any) {
	conds := []string{"org_id = ?"}
	args := []any{orgID}

	if f.Starred {
		conds = append(conds, "starred = 1")
	}
	if len(f.Datasources) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(f.Datasources)), ",")
		conds = append(conds, "datasource_name IN ("+marks+")")
		for _, name := range f.Datasources {
			args = append(args, name)
		}
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		conds = append(conds, `(search_text LIKE ? ESCAPE '\' OR comment LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if f.From != 0 || f.To != 0 {
		from, to := f.From, f.To
		if from > to {
			from, to = to, from
		}
		now := s.now()
		start := startOfDay(now.AddDate(0, 0, -to))
		end := startOfDay(now.AddDate(0, 0, -from)).AddDate(0, 0, 1)
		conds = append(conds, "created_at >= ? AND created_at < ?")
		args = append(args, start.UnixMilli(), end.UnixMilli())
	}
	return strings.Join(conds, " AND "), args
}

func orderBy(order core.SortOrder) string {
	switch order {
	case core.SortOrderOldest:
		return "created_at ASC"
	case core.SortOrderDatasourceAZ:
		return "datasource_name ASC, created_at DESC"
	case core.SortOrderDatasourceZA:
		return "datasource_name DESC, created_at DESC"
	default:
		return "created_at DESC"
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
