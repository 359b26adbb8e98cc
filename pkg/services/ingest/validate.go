package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/seclens/auditgate/pkg/models/api"
	"github.com/seclens/auditgate/pkg/models/domain"
)

// SupportedSchemaMajor is the only envelope major version this gateway
// understands. Anything else is rejected rather than guessed at.
const SupportedSchemaMajor = "1"

// ValidateEnvelope checks the submission envelope exhaustively and maps it
// into domain form. It runs before any side effect; a failure here means
// the caller must fix the envelope and resubmit.
func ValidateEnvelope(envelope api.SubmissionEnvelope) (domain.Submission, error) {
	if envelope.SchemaVersion == "" {
		return domain.Submission{}, &domain.ValidationError{
			Field: "schema_version", Reason: "required",
		}
	}
	major, _, _ := strings.Cut(envelope.SchemaVersion, ".")
	if major != SupportedSchemaMajor {
		return domain.Submission{}, &domain.ValidationError{
			Field:  "schema_version",
			Reason: fmt.Sprintf("unsupported major version %q", envelope.SchemaVersion),
		}
	}

	if strings.TrimSpace(envelope.RepoFingerprint) == "" {
		return domain.Submission{}, &domain.ValidationError{
			Field: "repo_fingerprint", Reason: "required",
		}
	}
	if strings.TrimSpace(envelope.IdempotencyKey) == "" {
		return domain.Submission{}, &domain.ValidationError{
			Field: "idempotency_key", Reason: "required",
		}
	}

	findings := make(domain.FindingsSummary, len(envelope.Findings))
	for tier, count := range envelope.Findings {
		severity := domain.Severity(tier)
		if !domain.KnownSeverity(severity) {
			return domain.Submission{}, &domain.ValidationError{
				Field:  "findings_by_severity",
				Reason: fmt.Sprintf("unknown severity tier %q", tier),
			}
		}
		if count < 0 {
			return domain.Submission{}, &domain.ValidationError{
				Field:  "findings_by_severity",
				Reason: fmt.Sprintf("negative count %d for tier %s", count, tier),
			}
		}
		findings[severity] = count
	}

	if envelope.Timing.StartedAt == "" {
		return domain.Submission{}, &domain.ValidationError{
			Field: "timing.started_at", Reason: "required",
		}
	}
	startedAt, err := time.Parse(time.RFC3339, envelope.Timing.StartedAt)
	if err != nil {
		return domain.Submission{}, &domain.ValidationError{
			Field: "timing.started_at", Reason: "must be RFC 3339",
		}
	}
	if envelope.Timing.DurationMs < 0 {
		return domain.Submission{}, &domain.ValidationError{
			Field: "timing.duration_ms", Reason: "must be non-negative",
		}
	}

	if envelope.Cost.CostEstimate < 0 {
		return domain.Submission{}, &domain.ValidationError{
			Field: "cost_metadata.cost_estimate", Reason: "must be non-negative",
		}
	}
	if envelope.Cost.TokensIn < 0 || envelope.Cost.TokensOut < 0 {
		return domain.Submission{}, &domain.ValidationError{
			Field: "cost_metadata", Reason: "token counts must be non-negative",
		}
	}

	return domain.Submission{
		RunID:           strings.TrimSpace(envelope.RunID),
		RepoFingerprint: envelope.RepoFingerprint,
		IdempotencyKey:  envelope.IdempotencyKey,
		Findings:        findings,
		ScanFailed:      envelope.ScanFailed,
		StartedAt:       startedAt.UTC(),
		DurationMs:      envelope.Timing.DurationMs,
		CostEstimate:    envelope.Cost.CostEstimate,
		TokensIn:        envelope.Cost.TokensIn,
		TokensOut:       envelope.Cost.TokensOut,
		RequestedMode:   envelope.RequestedMode,
	}, nil
}
