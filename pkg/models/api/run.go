package api

import "time"

type Run struct {
	RunID           string         `json:"run_id"`
	RepoFingerprint string         `json:"repo_fingerprint"`
	Status          string         `json:"status"`
	Findings        map[string]int `json:"findings_by_severity"`
	StartedAt       time.Time      `json:"started_at"`
	DurationMs      int64          `json:"duration_ms"`
	CostEstimate    float64        `json:"cost_estimate"`
	TokensIn        int64          `json:"tokens_in"`
	TokensOut       int64          `json:"tokens_out"`
	RequestedMode   string         `json:"requested_mode,omitempty"`
	PolicyVersion   string         `json:"policy_version"`
	CreatedAt       time.Time      `json:"created_at"`
}

type RunList struct {
	Runs   []Run `json:"runs"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

type TrendPoint struct {
	Day      string         `json:"day"`
	Passed   int            `json:"passed"`
	Blocked  int            `json:"blocked"`
	Errored  int            `json:"error"`
	Findings map[string]int `json:"findings_by_severity"`
}

type Summary struct {
	RunsThisWeek int          `json:"runs_this_week"`
	BlockedCount int          `json:"blocked_count"`
	PassRate     float64      `json:"pass_rate"`
	Trend        []TrendPoint `json:"trend"`
}
