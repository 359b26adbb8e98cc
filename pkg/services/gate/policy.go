package gate

import (
	"fmt"

	"github.com/seclens/auditgate/pkg/models/domain"
	"github.com/spf13/viper"
)

type policyFile struct {
	Version    string         `mapstructure:"version"`
	Thresholds map[string]int `mapstructure:"thresholds"`
}

// LoadPolicy reads a severity policy from a viper-readable file (yaml,
// json, toml). The file lists only the tiers that can block:
//
//	version: team-v3
//	thresholds:
//	  P0: 0
//	  P1: 3
//
// Malformed policies are rejected here, never at decision time.
func LoadPolicy(path string) (domain.SeverityPolicy, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return domain.SeverityPolicy{}, fmt.Errorf("failed to read policy file: %w", err)
	}

	var pf policyFile
	if err := v.Unmarshal(&pf); err != nil {
		return domain.SeverityPolicy{}, fmt.Errorf("failed to parse policy file: %w", err)
	}

	policy := domain.SeverityPolicy{Version: pf.Version}
	for _, tier := range domain.Tiers {
		threshold, ok := pf.Thresholds[string(tier)]
		if !ok {
			continue
		}
		policy.Thresholds = append(policy.Thresholds, domain.TierThreshold{
			Tier:      tier,
			Threshold: threshold,
		})
	}
	for tier := range pf.Thresholds {
		if !domain.KnownSeverity(domain.Severity(tier)) {
			return domain.SeverityPolicy{}, &domain.PolicyConfigError{
				Reason: fmt.Sprintf("unknown severity tier %q", tier),
			}
		}
	}

	if err := ValidatePolicy(policy); err != nil {
		return domain.SeverityPolicy{}, err
	}
	return policy, nil
}

// ValidatePolicy enforces the policy invariants: a version, at least one
// blocking tier, known tiers only, no duplicates, no negative thresholds.
func ValidatePolicy(policy domain.SeverityPolicy) error {
	if policy.Version == "" {
		return &domain.PolicyConfigError{Reason: "missing policy version"}
	}
	if len(policy.Thresholds) == 0 {
		return &domain.PolicyConfigError{Reason: "no blocking tiers configured"}
	}

	seen := map[domain.Severity]bool{}
	for _, t := range policy.Thresholds {
		if !domain.KnownSeverity(t.Tier) {
			return &domain.PolicyConfigError{
				Reason: fmt.Sprintf("unknown severity tier %q", t.Tier),
			}
		}
		if seen[t.Tier] {
			return &domain.PolicyConfigError{
				Reason: fmt.Sprintf("duplicate threshold for tier %s", t.Tier),
			}
		}
		seen[t.Tier] = true
		if t.Threshold < 0 {
			return &domain.PolicyConfigError{
				Reason: fmt.Sprintf("negative threshold %d for tier %s", t.Threshold, t.Tier),
			}
		}
	}
	return nil
}

// WithP1Threshold derives a per-repo policy variant with an overridden P1
// limit. The version is suffixed so Runs record which variant decided them.
func WithP1Threshold(policy domain.SeverityPolicy, threshold int) domain.SeverityPolicy {
	out := domain.SeverityPolicy{
		Version:    fmt.Sprintf("%s+p1=%d", policy.Version, threshold),
		Thresholds: make([]domain.TierThreshold, 0, len(policy.Thresholds)+1),
	}
	replaced := false
	for _, t := range policy.Thresholds {
		if t.Tier == domain.SeverityP1 {
			t.Threshold = threshold
			replaced = true
		}
		out.Thresholds = append(out.Thresholds, t)
	}
	if !replaced {
		out.Thresholds = append(out.Thresholds, domain.TierThreshold{
			Tier:      domain.SeverityP1,
			Threshold: threshold,
		})
	}
	return out
}
