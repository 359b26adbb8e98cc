package store

import "time"

// TrendRow is one per-day bucket of the trend_points table, keyed by Day
// (UTC midnight).
type TrendRow struct {
	Day     time.Time
	Passed  int
	Blocked int
	Errored int
	P0      int
	P1      int
	P2      int
	P3      int
}
