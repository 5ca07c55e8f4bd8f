package ranking

import (
	"strings"
	"time"
)

// FallbackDays applies to unrecognised period tokens.
const FallbackDays = 365

var periods = map[string]int{
	"1y": 365,
	"6m": 180,
	"3m": 90,
	"1m": 30,
	"7d": 7,
}

// Periods lists the recognised tokens.
func Periods() []string { return []string{"1y", "6m", "3m", "1m", "7d"} }

// Window is a creation-time filter. Zero Days means all time.
type Window struct {
	Token string
	Days  int
}

// AllTime reports whether the window filters nothing.
func (w Window) AllTime() bool { return w.Days == 0 }

// Since returns the earliest creation time inside the window, or the zero
// time for all time.
func (w Window) Since(now time.Time) time.Time {
	if w.AllTime() {
		return time.Time{}
	}
	return now.AddDate(0, 0, -w.Days)
}

// ParsePeriod maps a period token to a window. An empty token is all time;
// an unknown one falls back to a year.
func ParsePeriod(token string) Window {
	t := strings.ToLower(strings.TrimSpace(token))
	if t == "" {
		return Window{}
	}
	if days, ok := periods[t]; ok {
		return Window{Token: t, Days: days}
	}
	return Window{Token: t, Days: FallbackDays}
}
