package gate

import (
	"sort"

	"github.com/seclens/auditgate/pkg/models/domain"
)

var tierRank = map[domain.Severity]int{
	domain.SeverityP0: 0,
	domain.SeverityP1: 1,
	domain.SeverityP2: 2,
	domain.SeverityP3: 3,
}

// Decide maps a findings summary and a policy to a verdict. It is pure:
// identical inputs always yield the identical verdict. It never fails: a
// scan that reported its own failure maps to VerdictError.
//
// Tiers are evaluated most severe first; the first tier whose count exceeds
// its threshold blocks. A threshold of zero means any occurrence blocks.
// Tiers absent from the policy never block.
func Decide(findings domain.FindingsSummary, scanFailed bool, policy domain.SeverityPolicy) domain.Verdict {
	if scanFailed {
		return domain.VerdictError
	}

	thresholds := make([]domain.TierThreshold, len(policy.Thresholds))
	copy(thresholds, policy.Thresholds)
	sort.SliceStable(thresholds, func(i, j int) bool {
		return tierRank[thresholds[i].Tier] < tierRank[thresholds[j].Tier]
	})

	for _, t := range thresholds {
		if findings.Count(t.Tier) > t.Threshold {
			return domain.VerdictBlocked
		}
	}
	return domain.VerdictPassed
}
