package datasource

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/leapstack-labs/leapexplore/pkg/core"
)

const timestampLayout = "2006-01-02 15:04:05.000"

var (
	timeFilterRe = regexp.MustCompile(`\$__timeFilter\(\s*([^)]*?)\s*\)`)
	timeFromRe   = regexp.MustCompile(`\$__timeFrom\(\s*\)`)
	timeToRe     = regexp.MustCompile(`\$__timeTo\(\s*\)`)
)

// Interpolate expands time macros in sql:
//
//	$__timeFrom()      start of the range as a UTC timestamp literal
//	$__timeTo()        end of the range as a UTC timestamp literal
//	$__timeFilter(col) col BETWEEN <from> AND <to>
func Interpolate(sql string, tr core.TimeRange) (string, error) {
	if !strings.Contains(sql, "$__") {
		return sql, nil
	}
	from := timestampLiteral(tr.From)
	to := timestampLiteral(tr.To)

	var err error
	sql = timeFilterRe.ReplaceAllStringFunc(sql, func(m string) string {
		col := timeFilterRe.FindStringSubmatch(m)[1]
		if col == "" {
			err = fmt.Errorf("$__timeFilter requires a column argument")
			return m
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, from, to)
	})
	if err != nil {
		return "", err
	}
	sql = timeFromRe.ReplaceAllLiteralString(sql, from)
	sql = timeToRe.ReplaceAllLiteralString(sql, to)
	return sql, nil
}

func timestampLiteral(t time.Time) string {
	return "TIMESTAMP '" + t.UTC().Format(timestampLayout) + "'"
}
