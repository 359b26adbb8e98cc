package domain

// TierThreshold configures one blocking tier: a run is blocked when its
// count for Tier exceeds Threshold. A threshold of zero means any
// occurrence blocks.
type TierThreshold struct {
	Tier      Severity
	Threshold int
}

// SeverityPolicy decides gate verdicts. Tiers absent from Thresholds never
// block. The policy is versioned so a Run can record which policy decided
// it even after the active policy changes.
type SeverityPolicy struct {
	Version    string
	Thresholds []TierThreshold
}

// DefaultP1Threshold is the stock limit for high-severity findings when no
// explicit policy is configured.
const DefaultP1Threshold = 5

// DefaultPolicy blocks on any P0 and on more than DefaultP1Threshold P1
// findings. P2 and P3 never block.
func DefaultPolicy() SeverityPolicy {
	return SeverityPolicy{
		Version: "default-v1",
		Thresholds: []TierThreshold{
			{Tier: SeverityP0, Threshold: 0},
			{Tier: SeverityP1, Threshold: DefaultP1Threshold},
		},
	}
}
