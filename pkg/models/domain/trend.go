package domain

import "time"

// TrendPoint is a per-day aggregate over committed Runs. It is derived
// state: rebuildable from the Run store, never a source of truth.
type TrendPoint struct {
	Day      time.Time
	Passed   int
	Blocked  int
	Errored  int
	Findings FindingsSummary
}

// Summary holds the dashboard headline numbers, computed from persisted
// Runs and Trend Points only.
type Summary struct {
	RunsThisWeek int
	BlockedCount int
	PassRate     float64
	Trend        []TrendPoint
}
