package api

// SubmissionEnvelope is the wire contract with the scanning engine. The
// gateway validates it exhaustively before any state mutation; an
// unrecognized schema major version is rejected rather than guessed at.
type SubmissionEnvelope struct {
	SchemaVersion   string         `json:"schema_version"`
	RunID           string         `json:"run_id,omitempty"`
	RepoFingerprint string         `json:"repo_fingerprint"`
	IdempotencyKey  string         `json:"idempotency_key"`
	Findings        map[string]int `json:"findings_by_severity"`
	ScanFailed      bool           `json:"scan_failed,omitempty"`
	Timing          Timing         `json:"timing"`
	Cost            CostMetadata   `json:"cost_metadata"`
	RequestedMode   string         `json:"requested_mode,omitempty"`
}

type Timing struct {
	StartedAt  string `json:"started_at"`
	DurationMs int64  `json:"duration_ms"`
}

type CostMetadata struct {
	CostEstimate float64 `json:"cost_estimate"`
	TokensIn     int64   `json:"tokens_in"`
	TokensOut    int64   `json:"tokens_out"`
}

// SubmitResponse reports how a submission was decided. The two skipped
// flags are diagnostic only.
type SubmitResponse struct {
	RunID            string `json:"run_id"`
	Status           string `json:"status"`
	DedupeSkipped    bool   `json:"dedupe_skipped"`
	RateLimitSkipped bool   `json:"rate_limit_skipped"`
}

// ErrorResponse is the body of every non-2xx gateway reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	Retryable bool   `json:"retryable"`
}
