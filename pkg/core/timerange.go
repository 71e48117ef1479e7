package core

import "time"

// RawTimeRange is a time range as typed by a user, e.g. {"now-6h", "now"}.
type RawTimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// TimeRange is a resolved time range that remembers its raw form.
type TimeRange struct {
	From time.Time    `json:"from"`
	To   time.Time    `json:"to"`
	Raw  RawTimeRange `json:"raw"`
}

// AbsoluteRange is a resolved time range in epoch milliseconds.
type AbsoluteRange struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// Absolute converts the range to epoch milliseconds.
func (r TimeRange) Absolute() AbsoluteRange {
	return AbsoluteRange{
		From: r.From.UnixMilli(),
		To:   r.To.UnixMilli(),
	}
}

// DefaultRawRange is the range used when a pane is opened without one.
var DefaultRawRange = RawTimeRange{From: "now-1h", To: "now"}
