// Package history persists executed explore queries ("rich history") in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapexplore/pkg/core"

	// sqlite driver
	_ "modernc.org/sqlite"
)

// DefaultMaxEntries bounds the rich history of one org.
const DefaultMaxEntries = 10000

var (
	// ErrNotFound is returned when an entry does not exist in the org.
	ErrNotFound = errors.New("rich history entry not found")
	// ErrStorageFull is returned by Add when the org is at capacity and every entry is starred.
	ErrStorageFull = errors.New("rich history is full of starred entries")
)

// Options configures a SQLiteStore.
type Options struct {
	// MaxEntries bounds the entries kept per org; non-positive uses DefaultMaxEntries.
	MaxEntries int
	Now        func() time.Time
	Logger     *slog.Logger
}

// SQLiteStore stores rich history in a SQLite database.
type SQLiteStore struct {
	db         *sql.DB
	path       string
	maxEntries int
	now        func() time.Time
	logger     *slog.Logger
}

// NewSQLiteStore creates a store; call Open before use.
func NewSQLiteStore(opts Options) *SQLiteStore {
	s := &SQLiteStore{maxEntries: opts.MaxEntries, now: opts.Now, logger: opts.Logger}
	if s.maxEntries <= 0 {
		s.maxEntries = DefaultMaxEntries
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Open opens (creating if needed) the database at path and migrates it.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := ":memory:"
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	if err := s.Migrate(); err != nil {
		_ = db.Close()
		s.db = nil
		return err
	}
	s.logger.Debug("rich history opened", "path", path)
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Add stores q, assigning an ID and creation time when unset. When the org is
// at capacity the oldest unstarred entries are removed first.
func (s *SQLiteStore) Add(ctx context.Context, q core.RichHistoryQuery) (core.RichHistoryQuery, error) {
	if s.db == nil {
		return core.RichHistoryQuery{}, fmt.Errorf("database not opened")
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = s.now()
	}
	q.CreatedAt = q.CreatedAt.UTC().Truncate(time.Millisecond)
	if q.Queries == nil {
		q.Queries = []core.DataQuery{}
	}
	queries, err := json.Marshal(q.Queries)
	if err != nil {
		return core.RichHistoryQuery{}, fmt.Errorf("encode queries: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.RichHistoryQuery{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.makeRoom(ctx, tx, q.OrgID); err != nil {
		return core.RichHistoryQuery{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rich_history (id, org_id, created_at, datasource_uid, datasource_name, starred, comment, queries, search_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.OrgID, q.CreatedAt.UnixMilli(), q.DatasourceUID, q.DatasourceName, q.Starred, q.Comment, string(queries), searchText(q.Queries),
	)
	if err != nil {
		return core.RichHistoryQuery{}, fmt.Errorf("failed to add rich history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.RichHistoryQuery{}, err
	}
	return q, nil
}

// searchText is the plain text matched by Search: the query expressions, one per line.
func searchText(queries []core.DataQuery) string {
	exprs := make([]string, len(queries))
	for i, q := range queries {
		exprs[i] = q.Expr
	}
	return strings.Join(exprs, "\n")
}

// makeRoom deletes the oldest unstarred entries so one more fits.
func (s *SQLiteStore) makeRoom(ctx context.Context, tx *sql.Tx, orgID int64) error {
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM rich_history WHERE org_id = ?`, orgID).Scan(&count); err != nil {
		return err
	}
	excess := count - s.maxEntries + 1
	if excess <= 0 {
		return nil
	}
	res, err := tx.ExecContext(ctx, `
		DELETE FROM rich_history WHERE id IN (
			SELECT id FROM rich_history
			WHERE org_id = ? AND starred = 0
			ORDER BY created_at ASC
			LIMIT ?
		)`, orgID, excess)
	if err != nil {
		return fmt.Errorf("failed to trim rich history: %w", err)
	}
	if n, _ := res.RowsAffected(); n < int64(excess) {
		return ErrStorageFull
	}
	s.logger.Debug("trimmed rich history", "org_id", orgID, "deleted", excess)
	return nil
}

// Get returns one entry.
func (s *SQLiteStore) Get(ctx context.Context, orgID int64, id string) (core.RichHistoryQuery, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM rich_history WHERE org_id = ? AND id = ?`, orgID, id)
	q, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RichHistoryQuery{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return q, err
}

// Star sets the starred flag of an entry.
func (s *SQLiteStore) Star(ctx context.Context, orgID int64, id string, starred bool) (core.RichHistoryQuery, error) {
	if err := s.update(ctx, `UPDATE rich_history SET starred = ? WHERE org_id = ? AND id = ?`, starred, orgID, id); err != nil {
		return core.RichHistoryQuery{}, err
	}
	return s.Get(ctx, orgID, id)
}

// Comment sets the comment of an entry.
func (s *SQLiteStore) Comment(ctx context.Context, orgID int64, id, comment string) (core.RichHistoryQuery, error) {
	if err := s.update(ctx, `UPDATE rich_history SET comment = ? WHERE org_id = ? AND id = ?`, comment, orgID, id); err != nil {
		return core.RichHistoryQuery{}, err
	}
	return s.Get(ctx, orgID, id)
}

// Delete removes an entry.
func (s *SQLiteStore) Delete(ctx context.Context, orgID int64, id string) error {
	return s.update(ctx, `DELETE FROM rich_history WHERE org_id = ? AND id = ?`, orgID, id)
}

func (s *SQLiteStore) update(ctx context.Context, query string, args ...any) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update rich history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %v", ErrNotFound, args[len(args)-1])
	}
	return nil
}

// DeleteAll removes every entry of the org and returns how many were removed.
// Starred entries are kept unless includeStarred is set.
func (s *SQLiteStore) DeleteAll(ctx context.Context, orgID int64, includeStarred bool) (int64, error) {
	query := `DELETE FROM rich_history WHERE org_id = ?`
	if !includeStarred {
		query += ` AND starred = 0`
	}
	res, err := s.db.ExecContext(ctx, query, orgID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear rich history: %w", err)
	}
	return res.RowsAffected()
}

// Cleanup removes unstarred entries older than retention across all orgs.
func (s *SQLiteStore) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM rich_history WHERE starred = 0 AND created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up rich history: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n > 0 {
		s.logger.Info("rich history cleaned up", "deleted", n, "retention", retention)
	}
	return n, err
}

// Recent returns the most recent queries run against a datasource, newest
// first and without repeated expressions.
func (s *SQLiteStore) Recent(ctx context.Context, orgID int64, datasourceUID string, limit int) ([]core.HistoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT created_at, queries FROM rich_history
		WHERE org_id = ? AND datasource_uid = ?
		ORDER BY created_at DESC
		LIMIT ?`, orgID, datasourceUID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := []core.HistoryItem{}
	seen := make(map[string]bool)
	for rows.Next() && len(items) < limit {
		var (
			createdAt int64
			raw       string
		)
		if err := rows.Scan(&createdAt, &raw); err != nil {
			return nil, err
		}
		var queries []core.DataQuery
		if err := json.Unmarshal([]byte(raw), &queries); err != nil {
			return nil, fmt.Errorf("decode queries: %w", err)
		}
		for _, q := range queries {
			expr := strings.TrimSpace(q.Expr)
			if expr == "" || seen[expr] || len(items) == limit {
				continue
			}
			seen[expr] = true
			items = append(items, core.HistoryItem{TS: time.UnixMilli(createdAt).UTC(), Query: q})
		}
	}
	return items, rows.Err()
}

// SetLastUsedDatasource remembers the datasource last opened in an org.
func (s *SQLiteStore) SetLastUsedDatasource(ctx context.Context, orgID int64, uid string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO last_used_datasource (org_id, uid, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (org_id) DO UPDATE SET uid = excluded.uid, updated_at = excluded.updated_at`,
		orgID, uid, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to set last used datasource: %w", err)
	}
	return nil
}

// LastUsedDatasource returns the datasource last opened in an org, or "".
func (s *SQLiteStore) LastUsedDatasource(ctx context.Context, orgID int64) (string, error) {
	var uid string
	err := s.db.QueryRowContext(ctx, `SELECT uid FROM last_used_datasource WHERE org_id = ?`, orgID).Scan(&uid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get last used datasource: %w", err)
	}
	return uid, nil
}

const columns = `id, org_id, created_at, datasource_uid, datasource_name, starred, comment, queries`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (core.RichHistoryQuery, error) {
	var (
		q         core.RichHistoryQuery
		createdAt int64
		raw       string
	)
	if err := row.Scan(&q.ID, &q.OrgID, &createdAt, &q.DatasourceUID, &q.DatasourceName, &q.Starred, &q.Comment, &raw); err != nil {
		return core.RichHistoryQuery{}, err
	}
	q.CreatedAt = time.UnixMilli(createdAt).UTC()
	if err := json.Unmarshal([]byte(raw), &q.Queries); err != nil {
		return core.RichHistoryQuery{}, fmt.Errorf("decode queries of %s: %w", q.ID, err)
	}
	return q, nil
}
