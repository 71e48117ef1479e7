// Package timerange resolves user-typed time ranges ("now-6h", "now/d",
// absolute timestamps) into absolute ranges in a given time zone.
package timerange

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/timberio/go-datemath"

	"github.com/leapstack-labs/leapexplore/pkg/core"
)

// Zone names that defer to the configured default zone.
const (
	ZoneBrowser = "browser"
	ZoneDefault = "default"
	ZoneUTC     = "utc"
)

// absoluteLayouts are tried in order for non-relative expressions.
var absoluteLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ResolveZone maps a user time-zone preference to a location.
// Empty, "browser" and "default" resolve to fallback (time.Local when nil).
func ResolveZone(name string, fallback *time.Location) (*time.Location, error) {
	if fallback == nil {
		fallback = time.Local
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ZoneBrowser, ZoneDefault:
		return fallback, nil
	case ZoneUTC:
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", name, err)
	}
	return loc, nil
}

// Resolve converts a raw range into an absolute range in loc.
// The From bound rounds down and the To bound rounds up.
func Resolve(raw core.RawTimeRange, loc *time.Location, now time.Time) (core.TimeRange, error) {
	if raw.From == "" && raw.To == "" {
		raw = core.DefaultRawRange
	}
	from, err := Parse(raw.From, now, loc, false)
	if err != nil {
		return core.TimeRange{}, fmt.Errorf("invalid range start: %w", err)
	}
	to, err := Parse(raw.To, now, loc, true)
	if err != nil {
		return core.TimeRange{}, fmt.Errorf("invalid range end: %w", err)
	}
	if to.Before(from) {
		return core.TimeRange{}, fmt.Errorf("range end %s is before start %s", raw.To, raw.From)
	}
	return core.TimeRange{From: from, To: to, Raw: raw}, nil
}

// implicitAmount matches an offset written without its count, as in "now-h".
var implicitAmount = regexp.MustCompile(`([+-])([a-zA-Z])`)

// Parse evaluates one time expression.
//
// Supported forms: "now", "now-6h", "now+1d", "now/d", "now-1w/w",
// epoch milliseconds and the absolute layouts above. Units are
// s m h d w M y. Rounding with "/" truncates to the start of the unit,
// or to its last millisecond when roundUp is set. Weeks start on Monday.
func Parse(expr string, now time.Time, loc *time.Location, roundUp bool) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}

	if !strings.HasPrefix(expr, "now") {
		return parseAbsolute(expr, loc)
	}

	parsed, err := datemath.Parse(implicitAmount.ReplaceAllString(expr, "${1}1${2}"))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", expr, err)
	}
	t := parsed.Time(
		datemath.WithNow(now.In(loc)),
		datemath.WithLocation(loc),
		datemath.WithStartOfWeek(time.Monday),
	).In(loc)
	if roundUp && strings.Contains(expr, "/") {
		t = t.Truncate(time.Millisecond)
	}
	return t, nil
}

func parseAbsolute(expr string, loc *time.Location) (time.Time, error) {
	if ms, err := strconv.ParseInt(expr, 10, 64); err == nil {
		return time.UnixMilli(ms).In(loc), nil
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, expr, loc); err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", expr)
}
