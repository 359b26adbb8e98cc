package store

import "time"

// RunRow mirrors one row of the runs table. Findings counts are flattened
// into per-tier columns so aggregation stays in SQL.
type RunRow struct {
	ID              string
	RepoFingerprint string
	Status          string
	P0              int
	P1              int
	P2              int
	P3              int
	StartedAt       time.Time
	DurationMs      int64
	CostEstimate    float64
	TokensIn        int64
	TokensOut       int64
	IdempotencyKey  string
	RequestedMode   string
	PolicyVersion   string
	CreatedAt       time.Time
}

// StatusCounts aggregates runs by verdict over some window.
type StatusCounts struct {
	Passed  int
	Blocked int
	Errored int
}

func (c StatusCounts) Total() int {
	return c.Passed + c.Blocked + c.Errored
}
