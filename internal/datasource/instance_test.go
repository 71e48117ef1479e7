package datasource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapexplore/internal/testutil"
	"github.com/leapstack-labs/leapexplore/pkg/adapter"
	"github.com/leapstack-labs/leapexplore/pkg/core"
)

// mockAdapter is a database/sql adapter backed by sqlmock.
type mockAdapter struct {
	adapter.BaseSQLAdapter
}

func (m *mockAdapter) Connect(context.Context, adapter.Config) error { return nil }
func (m *mockAdapter) GetTableMetadata(ctx context.Context, table string) (*adapter.Metadata, error) {
	return m.GetTableMetadataCommon(ctx, table, "main", adapter.QuestionPlaceholder)
}

func newMockInstance(t *testing.T, maxRows int, opts ...sqlmock.QueryMatcher) (*Instance, sqlmock.Sqlmock) {
	t.Helper()
	matcher := sqlmock.QueryMatcherEqual
	if len(opts) > 0 {
		matcher = opts[0]
	}
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(matcher), sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	adp := &mockAdapter{BaseSQLAdapter: adapter.BaseSQLAdapter{DB: db}}
	settings := Settings{UID: "mock", Name: "Mock", Type: "duckdb"}
	return NewInstance(settings, adp, maxRows, time.Second, testutil.NewTestLogger(t)), mock
}

func TestInstance_Query(t *testing.T) {
	inst, mock := newMockInstance(t, 0)
	tr := core.TimeRange{
		From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	mock.ExpectQuery("SELECT name, total FROM sales WHERE ts BETWEEN TIMESTAMP '2024-01-01 00:00:00.000' AND TIMESTAMP '2024-01-02 00:00:00.000'").
		WillReturnRows(sqlmock.NewRows([]string{"name", "total"}).
			AddRow([]byte("north"), 10).
			AddRow("south", nil))

	frame, err := inst.Query(context.Background(), core.DataQuery{RefID: "A", Expr: "SELECT name, total FROM sales WHERE $__timeFilter(ts)"}, tr)
	require.NoError(t, err)

	assert.Equal(t, "A", frame.RefID)
	assert.Equal(t, []string{"name", "total"}, frame.Columns)
	require.Len(t, frame.Rows, 2)
	assert.Equal(t, "north", frame.Rows[0][0], "[]byte is converted to string")
	assert.Nil(t, frame.Rows[1][1])
	assert.False(t, frame.Truncated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInstance_RowCap(t *testing.T) {
	tests := []struct {
		name          string
		maxRows       int
		queryMaxRows  int
		wantRows      int
		wantTruncated bool
	}{
		{"no cap", 0, 0, 5, false},
		{"datasource cap", 3, 0, 3, true},
		{"cap equal to rows", 5, 0, 5, false},
		{"query overrides cap", 3, 4, 4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, mock := newMockInstance(t, tt.maxRows)
			rows := sqlmock.NewRows([]string{"n"})
			for i := range 5 {
				rows.AddRow(i)
			}
			mock.ExpectQuery("SELECT n FROM t").WillReturnRows(rows)

			frame, err := inst.Query(context.Background(), core.DataQuery{Expr: "SELECT n FROM t", MaxRows: tt.queryMaxRows}, core.TimeRange{})
			require.NoError(t, err)
			assert.Len(t, frame.Rows, tt.wantRows)
			assert.Equal(t, tt.wantTruncated, frame.Truncated)
		})
	}
}

func TestInstance_QueryError(t *testing.T) {
	inst, mock := newMockInstance(t, 0)
	mock.ExpectQuery("SELECT broken").WillReturnError(errors.New("syntax error"))

	_, err := inst.Query(context.Background(), core.DataQuery{Expr: "SELECT broken"}, core.TimeRange{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error")

	_, err = inst.Query(context.Background(), core.DataQuery{Expr: "WHERE $__timeFilter()"}, core.TimeRange{})
	require.Error(t, err)
}

func TestInstance_RowError(t *testing.T) {
	inst, mock := newMockInstance(t, 0)
	mock.ExpectQuery("SELECT n FROM t").WillReturnRows(
		sqlmock.NewRows([]string{"n"}).AddRow(1).AddRow(2).RowError(1, errors.New("connection reset")))

	_, err := inst.Query(context.Background(), core.DataQuery{Expr: "SELECT n FROM t"}, core.TimeRange{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestInstance_PingAndClose(t *testing.T) {
	inst, mock := newMockInstance(t, 0)
	mock.ExpectPing()
	mock.ExpectClose()

	require.NoError(t, inst.Ping(context.Background()))
	require.NoError(t, inst.Close())
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "mock", inst.UID())
	assert.Equal(t, "Mock", inst.Name())
	assert.Equal(t, "duckdb", inst.Type())

	_, err := inst.Query(context.Background(), core.DataQuery{Expr: "SELECT 1"}, core.TimeRange{})
	assert.ErrorContains(t, err, "is closed")
}

func TestInstance_Describe(t *testing.T) {
	inst, mock := newMockInstance(t, 0, sqlmock.QueryMatcherRegexp)
	mock.ExpectQuery("information_schema.columns").
		WithArgs("sales", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "ordinal_position"}).
			AddRow("id", "INTEGER", "NO", 1))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("information_schema.columns").
		WithArgs("main", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "ordinal_position"}))

	meta, err := inst.Describe(context.Background(), "sales.orders")
	require.NoError(t, err)
	assert.Equal(t, "sales", meta.Schema)
	assert.Equal(t, "orders", meta.Name)
	assert.Equal(t, int64(3), meta.RowCount)

	_, err = inst.Describe(context.Background(), "missing")
	assert.ErrorContains(t, err, "describe missing: table missing not found")
	require.NoError(t, mock.ExpectationsWereMet())
}
