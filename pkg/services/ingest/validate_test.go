package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seclens/auditgate/pkg/models/api"
	"github.com/seclens/auditgate/pkg/models/domain"
)

func validEnvelope() api.SubmissionEnvelope {
	return api.SubmissionEnvelope{
		SchemaVersion:   "1.2",
		RunID:           "run-1",
		RepoFingerprint: "repo-1",
		IdempotencyKey:  "k1",
		Findings:        map[string]int{"P0": 0, "P1": 2, "P2": 3, "P3": 1},
		Timing: api.Timing{
			StartedAt:  "2025-06-01T10:00:00Z",
			DurationMs: 1500,
		},
		Cost: api.CostMetadata{
			CostEstimate: 0.42,
			TokensIn:     1200,
			TokensOut:    340,
		},
		RequestedMode: "full",
	}
}

func TestValidateEnvelope(t *testing.T) {
	submission, err := ValidateEnvelope(validEnvelope())
	require.NoError(t, err)

	assert.Equal(t, "run-1", submission.RunID)
	assert.Equal(t, "repo-1", submission.RepoFingerprint)
	assert.Equal(t, "k1", submission.IdempotencyKey)
	assert.Equal(t, 2, submission.Findings.Count(domain.SeverityP1))
	assert.Equal(t, int64(1500), submission.DurationMs)
	assert.False(t, submission.ScanFailed)
}

func TestValidateEnvelope_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*api.SubmissionEnvelope)
		field  string
	}{
		{
			name:   "missing schema version",
			mutate: func(e *api.SubmissionEnvelope) { e.SchemaVersion = "" },
			field:  "schema_version",
		},
		{
			name:   "unknown major version fails closed",
			mutate: func(e *api.SubmissionEnvelope) { e.SchemaVersion = "2.0" },
			field:  "schema_version",
		},
		{
			name:   "missing repo fingerprint",
			mutate: func(e *api.SubmissionEnvelope) { e.RepoFingerprint = "  " },
			field:  "repo_fingerprint",
		},
		{
			name:   "missing idempotency key",
			mutate: func(e *api.SubmissionEnvelope) { e.IdempotencyKey = "" },
			field:  "idempotency_key",
		},
		{
			name:   "unknown severity tier",
			mutate: func(e *api.SubmissionEnvelope) { e.Findings = map[string]int{"P7": 1} },
			field:  "findings_by_severity",
		},
		{
			name:   "negative finding count",
			mutate: func(e *api.SubmissionEnvelope) { e.Findings["P1"] = -1 },
			field:  "findings_by_severity",
		},
		{
			name:   "missing start time",
			mutate: func(e *api.SubmissionEnvelope) { e.Timing.StartedAt = "" },
			field:  "timing.started_at",
		},
		{
			name:   "malformed start time",
			mutate: func(e *api.SubmissionEnvelope) { e.Timing.StartedAt = "June 1st" },
			field:  "timing.started_at",
		},
		{
			name:   "negative duration",
			mutate: func(e *api.SubmissionEnvelope) { e.Timing.DurationMs = -5 },
			field:  "timing.duration_ms",
		},
		{
			name:   "negative token count",
			mutate: func(e *api.SubmissionEnvelope) { e.Cost.TokensOut = -1 },
			field:  "cost_metadata",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			envelope := validEnvelope()
			tc.mutate(&envelope)

			_, err := ValidateEnvelope(envelope)
			require.Error(t, err)

			var validation *domain.ValidationError
			require.ErrorAs(t, err, &validation)
			assert.Equal(t, tc.field, validation.Field)
		})
	}
}

func TestValidateEnvelope_MinorVersionsAccepted(t *testing.T) {
	for _, version := range []string{"1", "1.0", "1.9"} {
		envelope := validEnvelope()
		envelope.SchemaVersion = version

		_, err := ValidateEnvelope(envelope)
		assert.NoError(t, err, "version %s", version)
	}
}

func TestValidateEnvelope_EmptyFindingsWithScanFailure(t *testing.T) {
	envelope := validEnvelope()
	envelope.Findings = nil
	envelope.ScanFailed = true

	submission, err := ValidateEnvelope(envelope)
	require.NoError(t, err)
	assert.True(t, submission.ScanFailed)
	assert.Equal(t, 0, submission.Findings.Total())
}
