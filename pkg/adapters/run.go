package adapters

import (
	"time"

	"github.com/seclens/auditgate/pkg/models/api"
	"github.com/seclens/auditgate/pkg/models/domain"
	"github.com/seclens/auditgate/pkg/models/store"
)

func MapDomainRunToStoreRow(run domain.Run) store.RunRow {
	return store.RunRow{
		ID:              run.ID,
		RepoFingerprint: run.RepoFingerprint,
		Status:          string(run.Status),
		P0:              run.Findings.Count(domain.SeverityP0),
		P1:              run.Findings.Count(domain.SeverityP1),
		P2:              run.Findings.Count(domain.SeverityP2),
		P3:              run.Findings.Count(domain.SeverityP3),
		StartedAt:       run.StartedAt,
		DurationMs:      run.DurationMs,
		CostEstimate:    run.CostEstimate,
		TokensIn:        run.TokensIn,
		TokensOut:       run.TokensOut,
		IdempotencyKey:  run.IdempotencyKey,
		RequestedMode:   run.RequestedMode,
		PolicyVersion:   run.PolicyVersion,
		CreatedAt:       run.CreatedAt,
	}
}

func MapStoreRowToDomainRun(row store.RunRow) domain.Run {
	return domain.Run{
		ID:              row.ID,
		RepoFingerprint: row.RepoFingerprint,
		Status:          domain.Verdict(row.Status),
		Findings: domain.FindingsSummary{
			domain.SeverityP0: row.P0,
			domain.SeverityP1: row.P1,
			domain.SeverityP2: row.P2,
			domain.SeverityP3: row.P3,
		},
		StartedAt:      row.StartedAt,
		DurationMs:     row.DurationMs,
		CostEstimate:   row.CostEstimate,
		TokensIn:       row.TokensIn,
		TokensOut:      row.TokensOut,
		IdempotencyKey: row.IdempotencyKey,
		RequestedMode:  row.RequestedMode,
		PolicyVersion:  row.PolicyVersion,
		CreatedAt:      row.CreatedAt,
	}
}

func MapDomainRunToApi(run domain.Run) api.Run {
	return api.Run{
		RunID:           run.ID,
		RepoFingerprint: run.RepoFingerprint,
		Status:          string(run.Status),
		Findings:        MapFindingsDomainToApi(run.Findings),
		StartedAt:       run.StartedAt,
		DurationMs:      run.DurationMs,
		CostEstimate:    run.CostEstimate,
		TokensIn:        run.TokensIn,
		TokensOut:       run.TokensOut,
		RequestedMode:   run.RequestedMode,
		PolicyVersion:   run.PolicyVersion,
		CreatedAt:       run.CreatedAt,
	}
}

func MapFindingsDomainToApi(findings domain.FindingsSummary) map[string]int {
	out := make(map[string]int, len(domain.Tiers))
	for _, tier := range domain.Tiers {
		out[string(tier)] = findings.Count(tier)
	}
	return out
}

func MapDomainTrendPointToApi(point domain.TrendPoint) api.TrendPoint {
	return api.TrendPoint{
		Day:      point.Day.Format(time.DateOnly),
		Passed:   point.Passed,
		Blocked:  point.Blocked,
		Errored:  point.Errored,
		Findings: MapFindingsDomainToApi(point.Findings),
	}
}

func MapStoreTrendRowToDomain(row store.TrendRow) domain.TrendPoint {
	return domain.TrendPoint{
		Day:     row.Day,
		Passed:  row.Passed,
		Blocked: row.Blocked,
		Errored: row.Errored,
		Findings: domain.FindingsSummary{
			domain.SeverityP0: row.P0,
			domain.SeverityP1: row.P1,
			domain.SeverityP2: row.P2,
			domain.SeverityP3: row.P3,
		},
	}
}

func MapDomainSummaryToApi(summary domain.Summary) api.Summary {
	trend := make([]api.TrendPoint, 0, len(summary.Trend))
	for _, point := range summary.Trend {
		trend = append(trend, MapDomainTrendPointToApi(point))
	}
	return api.Summary{
		RunsThisWeek: summary.RunsThisWeek,
		BlockedCount: summary.BlockedCount,
		PassRate:     summary.PassRate,
		Trend:        trend,
	}
}
