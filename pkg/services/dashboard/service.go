package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/seclens/auditgate/pkg/adapters"
	"github.com/seclens/auditgate/pkg/models/domain"
	"github.com/seclens/auditgate/pkg/services/trend"
	runstore "github.com/seclens/auditgate/pkg/store/run"
)

const (
	summaryWindowDays = 7
	trendWindowDays   = 30
)

// Service serves the dashboard read path. It only reads persisted Runs and
// Trend Points; nothing here ever re-evaluates a gate verdict.
type Service struct {
	runs   runstore.Store
	trends *trend.Aggregator
	now    func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(runs runstore.Store, trends *trend.Aggregator, opts ...Option) *Service {
	s := &Service{
		runs:   runs,
		trends: trends,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ListRuns(ctx context.Context, filter runstore.ListFilter) ([]domain.Run, error) {
	rows, err := s.runs.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	runs := make([]domain.Run, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, adapters.MapStoreRowToDomainRun(row))
	}
	return runs, nil
}

func (s *Service) GetRun(ctx context.Context, id string) (domain.Run, error) {
	row, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return domain.Run{}, err
	}
	return adapters.MapStoreRowToDomainRun(row), nil
}

// GetSummary computes the dashboard headline: run and blocked counts plus
// pass rate over the last week, and the 30-day trend.
func (s *Service) GetSummary(ctx context.Context) (domain.Summary, error) {
	since := s.now().UTC().AddDate(0, 0, -summaryWindowDays)

	counts, err := s.runs.CountByStatusSince(ctx, since)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("summarize runs: %w", err)
	}

	points, err := s.trends.GetTrend(ctx, trendWindowDays)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("load trend: %w", err)
	}

	summary := domain.Summary{
		RunsThisWeek: counts.Total(),
		BlockedCount: counts.Blocked,
		Trend:        points,
	}
	if counts.Total() > 0 {
		summary.PassRate = float64(counts.Passed) / float64(counts.Total())
	}
	return summary, nil
}
