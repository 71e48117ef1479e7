// Package testutil provides logging helpers for tests.
package testutil

import (
	"context"
	"log/slog"
	"sync"
	"testing"
)

// NewTestLogger returns a debug logger that writes to t.Log, so output only
// shows for failing tests or with -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

// LogRecord is one captured log line.
type LogRecord struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// LogRecorder is a slog.Handler that keeps every record for assertions.
type LogRecorder struct {
	mu      sync.Mutex
	records []LogRecord
	attrs   []slog.Attr
	root    *LogRecorder
}

// NewRecordingLogger returns a logger and the recorder behind it.
func NewRecordingLogger() (*slog.Logger, *LogRecorder) {
	r := &LogRecorder{}
	r.root = r
	return slog.New(r), r
}

// Enabled implements slog.Handler.
func (r *LogRecorder) Enabled(context.Context, slog.Level) bool { return true }

// Handle implements slog.Handler.
func (r *LogRecorder) Handle(_ context.Context, rec slog.Record) error {
	attrs := make(map[string]any, rec.NumAttrs()+len(r.attrs))
	for _, a := range r.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	rec.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	root := r.root
	root.mu.Lock()
	defer root.mu.Unlock()
	root.records = append(root.records, LogRecord{Level: rec.Level, Message: rec.Message, Attrs: attrs})
	return nil
}

// WithAttrs implements slog.Handler.
func (r *LogRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr{}, r.attrs...), attrs...)
	return &LogRecorder{attrs: merged, root: r.root}
}

// WithGroup implements slog.Handler. Groups are flattened.
func (r *LogRecorder) WithGroup(string) slog.Handler { return r }

// Records returns the captured records in order.
func (r *LogRecorder) Records() []LogRecord {
	r.root.mu.Lock()
	defer r.root.mu.Unlock()
	return append([]LogRecord(nil), r.root.records...)
}

// Find returns the first record with message msg.
func (r *LogRecorder) Find(msg string) (LogRecord, bool) {
	for _, rec := range r.Records() {
		if rec.Message == msg {
			return rec, true
		}
	}
	return LogRecord{}, false
}
