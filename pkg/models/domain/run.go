package domain

import "time"

type Severity string

const (
	SeverityP0 Severity = "P0"
	SeverityP1 Severity = "P1"
	SeverityP2 Severity = "P2"
	SeverityP3 Severity = "P3"
)

// Tiers is the full severity order, most severe first.
var Tiers = []Severity{SeverityP0, SeverityP1, SeverityP2, SeverityP3}

func KnownSeverity(s Severity) bool {
	for _, t := range Tiers {
		if t == s {
			return true
		}
	}
	return false
}

type Verdict string

const (
	VerdictPassed  Verdict = "passed"
	VerdictBlocked Verdict = "blocked"
	VerdictError   Verdict = "error"
)

// FindingsSummary maps a severity tier to a non-negative finding count.
// Tiers absent from the map count as zero.
type FindingsSummary map[Severity]int

func (f FindingsSummary) Count(tier Severity) int {
	return f[tier]
}

func (f FindingsSummary) Total() int {
	total := 0
	for _, n := range f {
		total += n
	}
	return total
}

// Run is one audit execution. A Run is created exactly once at first
// admission of its idempotency key and is immutable afterward.
type Run struct {
	ID              string
	RepoFingerprint string
	Status          Verdict
	Findings        FindingsSummary
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

// Submission is a validated envelope in domain form, ready for gating.
type Submission struct {
	RunID           string
	RepoFingerprint string
	IdempotencyKey  string
	Findings        FindingsSummary
	ScanFailed      bool
	StartedAt       time.Time
	DurationMs      int64
	CostEstimate    float64
	TokensIn        int64
	TokensOut       int64
	RequestedMode   string
}

// SubmitResult is the outcome of one gateway submission. DedupeSkipped
// marks a replayed outcome; RateLimitSkipped marks that the token bucket
// was not consulted on this path.
type SubmitResult struct {
	RunID            string
	Status           Verdict
	DedupeSkipped    bool
	RateLimitSkipped bool
}
