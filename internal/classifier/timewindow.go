package classifier

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/en"

	"github.com/agentmemory/memd/internal/types"
)

// agoPattern matches "N minutes|hours|days ago" phrases, the spec's
// highest-priority time-window pattern.
var agoPattern = regexp.MustCompile(`(?i)(\d+)\s*(minute|hour|day)s?\s+ago`)

var agoUnitMs = map[string]int64{
	"minute": 60_000,
	"hour":   3_600_000,
	"day":    86_400_000,
}

// namedWindow is one of the spec's fixed named lookback phrases, checked
// in the order listed so "last week" is tried before the bare "recent"
// catch-all.
type namedWindow struct {
	phrases []string
	days    int64
}

var namedWindows = []namedWindow{
	{phrases: []string{"yesterday", "today"}, days: 1},
	{phrases: []string{"last week", "this week"}, days: 7},
	{phrases: []string{"last month", "this month"}, days: 30},
	{phrases: []string{"recent", "latest"}, days: 3},
}

// extractTimeWindow finds a time window in text in the spec's documented
// priority order: "N units ago" phrases, then named lookback phrases,
// then a natural-language fallback via olebedev/when for phrasing the
// authoritative pattern set doesn't cover (e.g. "next monday", "3 days
// ago" already caught above, "in two weeks").
func extractTimeWindow(parser *when.Parser, text string, now time.Time) *types.TimeWindow {
	if m := agoPattern.FindStringSubmatch(text); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil {
			lookbackMs := n * agoUnitMs[strings.ToLower(m[2])]
			nowMs := now.UnixMilli()
			return &types.TimeWindow{StartMs: nowMs - lookbackMs, EndMs: nowMs}
		}
	}

	lower := strings.ToLower(text)
	for _, nw := range namedWindows {
		for _, phrase := range nw.phrases {
			if strings.Contains(lower, phrase) {
				nowMs := now.UnixMilli()
				return &types.TimeWindow{StartMs: nowMs - nw.days*86_400_000, EndMs: nowMs}
			}
		}
	}

	if parser == nil {
		return nil
	}
	result, err := parser.Parse(text, now)
	if err != nil || result == nil {
		return nil
	}
	target := result.Time.UnixMilli()
	nowMs := now.UnixMilli()
	if target <= nowMs {
		return &types.TimeWindow{StartMs: target, EndMs: nowMs}
	}
	return &types.TimeWindow{StartMs: nowMs, EndMs: target}
}

// newWhenParser builds the standard English natural-language date parser
// used as the fallback layer beneath the spec's own pattern set.
func newWhenParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	return w
}
