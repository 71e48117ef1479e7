package datasource

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/leapstack-labs/leapexplore/pkg/adapter"
	"github.com/leapstack-labs/leapexplore/pkg/core"
)

// Instance is a stable handle to a datasource. Panes keep it across
// provisioning reloads: when the settings change the connection is closed and
// the next query reconnects with the new settings.
type Instance struct {
	open    connectFunc
	maxRows int
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	settings Settings
	adapter  adapter.Adapter
	removed  bool
}

type connectFunc func(ctx context.Context, settings Settings) (adapter.Adapter, error)

// NewInstance wraps a connected adapter. maxRows and timeout are ignored when not positive.
func NewInstance(settings Settings, adp adapter.Adapter, maxRows int, timeout time.Duration, logger *slog.Logger) *Instance {
	inst := newInstance(settings, nil, maxRows, timeout, logger)
	inst.adapter = adp
	return inst
}

func newInstance(settings Settings, open connectFunc, maxRows int, timeout time.Duration, logger *slog.Logger) *Instance {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Instance{
		open:     open,
		settings: settings,
		maxRows:  maxRows,
		timeout:  timeout,
		logger:   logger.With("datasource", settings.UID),
	}
}

// UID returns the datasource UID.
func (i *Instance) UID() string { return i.Settings().UID }

// Name returns the datasource name.
func (i *Instance) Name() string { return i.Settings().Name }

// Type returns the adapter type.
func (i *Instance) Type() string { return i.Settings().Type }

// Settings returns the current settings of the datasource.
func (i *Instance) Settings() Settings {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.settings
}

// conn returns the open adapter, connecting first if needed. Only callers of
// the same instance wait on a slow connect.
func (i *Instance) conn(ctx context.Context) (adapter.Adapter, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.removed {
		return nil, fmt.Errorf("datasource %q was removed: %w", i.settings.Name, ErrNotFound)
	}
	if i.adapter != nil {
		return i.adapter, nil
	}
	if i.open == nil {
		return nil, fmt.Errorf("datasource %q is closed", i.settings.Name)
	}
	adp, err := i.open(ctx, i.settings)
	if err != nil {
		return nil, fmt.Errorf("open datasource %s: %w", i.settings.Name, err)
	}
	i.adapter = adp
	i.logger.Info("datasource connected", "type", i.settings.Type)
	return adp, nil
}

// reset closes the connection and switches to settings for the next connect.
func (i *Instance) reset(settings Settings) error {
	i.mu.Lock()
	adp := i.adapter
	i.adapter = nil
	i.settings = settings
	i.mu.Unlock()
	if adp == nil {
		return nil
	}
	return adp.Close()
}

// remove closes the connection for good.
func (i *Instance) remove() error {
	i.mu.Lock()
	i.removed = true
	i.mu.Unlock()
	return i.reset(i.Settings())
}

// Query runs q over tr and collects the result into a frame. Rows beyond the
// row cap are dropped and the frame is marked truncated.
func (i *Instance) Query(ctx context.Context, q core.DataQuery, tr core.TimeRange) (core.Frame, error) {
	sqlStr, err := Interpolate(q.Expr, tr)
	if err != nil {
		return core.Frame{}, err
	}
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}
	adp, err := i.conn(ctx)
	if err != nil {
		return core.Frame{}, err
	}

	limit := i.maxRows
	if q.MaxRows > 0 {
		limit = q.MaxRows
	}

	start := time.Now()
	rows, err := adp.Query(ctx, sqlStr)
	if err != nil {
		return core.Frame{}, err
	}
	defer func() { _ = rows.Close() }()

	frame, err := scanFrame(rows, limit)
	if err != nil {
		return core.Frame{}, fmt.Errorf("read results: %w", err)
	}
	frame.RefID = q.RefID
	i.logger.Debug("query executed", "ref_id", q.RefID, "rows", len(frame.Rows), "truncated", frame.Truncated, "duration", time.Since(start))
	return frame, nil
}

// Ping checks the connection when the adapter supports it.
func (i *Instance) Ping(ctx context.Context) error {
	adp, err := i.conn(ctx)
	if err != nil {
		return err
	}
	if p, ok := adp.(adapter.Pinger); ok {
		return p.Ping(ctx)
	}
	rows, err := adp.Query(ctx, "SELECT 1")
	if err != nil {
		return err
	}
	return rows.Close()
}

// Describe returns the columns and row count of table. An unqualified name
// resolves in the adapter's default schema.
func (i *Instance) Describe(ctx context.Context, table string) (*adapter.Metadata, error) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}
	adp, err := i.conn(ctx)
	if err != nil {
		return nil, err
	}
	meta, err := adp.GetTableMetadata(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
	}
	return meta, nil
}

// Close closes the underlying connection. The next query reconnects when the
// instance was opened by a Service.
func (i *Instance) Close() error {
	return i.reset(i.Settings())
}

func scanFrame(rows *core.Rows, limit int) (core.Frame, error) {
	cols, err := rows.Columns()
	if err != nil {
		return core.Frame{}, err
	}
	frame := core.Frame{Columns: cols, Rows: [][]any{}}

	for rows.Next() {
		if limit > 0 && len(frame.Rows) == limit {
			frame.Truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return core.Frame{}, err
		}
		for i, v := range values {
			// Drivers return text as []byte.
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		frame.Rows = append(frame.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return core.Frame{}, err
	}
	return frame, nil
}
