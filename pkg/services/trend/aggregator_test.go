package trend

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seclens/auditgate/pkg/adapters"
	"github.com/seclens/auditgate/pkg/models/domain"
	"github.com/seclens/auditgate/pkg/models/store"
	"github.com/seclens/auditgate/pkg/store/duckdb"
	duckdbrun "github.com/seclens/auditgate/pkg/store/duckdb/run"
	duckdbtrend "github.com/seclens/auditgate/pkg/store/duckdb/trend"
	runstore "github.com/seclens/auditgate/pkg/store/run"
)

type fixture struct {
	db         *sql.DB
	aggregator *Aggregator
	runs       runstore.Store
	trends     duckdbtrend.Store
}

func setupFixture(t *testing.T) *fixture {
	db, err := duckdb.NewDB(duckdb.Settings{DbPath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})

	runs, err := duckdbrun.NewStore(db)
	require.NoError(t, err)
	trends, err := duckdbtrend.NewStore(db)
	require.NoError(t, err)

	return &fixture{
		db:         db,
		aggregator: NewAggregator(db, runs, trends),
		runs:       runs,
		trends:     trends,
	}
}

func sampleRun(key string, status domain.Verdict, createdAt time.Time) domain.Run {
	return domain.Run{
		ID:              "run-" + key,
		RepoFingerprint: "repo-1",
		Status:          status,
		Findings: domain.FindingsSummary{
			domain.SeverityP1: 1,
			domain.SeverityP3: 2,
		},
		StartedAt:      createdAt.Add(-time.Minute),
		IdempotencyKey: key,
		PolicyVersion:  "default-v1",
		CreatedAt:      createdAt,
	}
}

func commit(t *testing.T, f *fixture, run domain.Run) {
	t.Helper()
	created, _, err := f.runs.Create(context.Background(), adapters.MapDomainRunToStoreRow(run))
	require.NoError(t, err)
	require.True(t, created)
}

func TestAggregator_Apply(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, f.aggregator.Apply(ctx, sampleRun("k1", domain.VerdictPassed, day.Add(9*time.Hour))))
	require.NoError(t, f.aggregator.Apply(ctx, sampleRun("k2", domain.VerdictBlocked, day.Add(15*time.Hour))))
	require.NoError(t, f.aggregator.Apply(ctx, sampleRun("k3", domain.VerdictError, day.Add(23*time.Hour))))

	rows, err := f.trends.GetRange(ctx, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, rows, 1, "same-day runs share one bucket")

	assert.Equal(t, 1, rows[0].Passed)
	assert.Equal(t, 1, rows[0].Blocked)
	assert.Equal(t, 1, rows[0].Errored)
	assert.Equal(t, 3, rows[0].P1)
	assert.Equal(t, 6, rows[0].P3)
}

func TestAggregator_RunLoopConsumesSignals(t *testing.T) {
	f := setupFixture(t)
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	go f.aggregator.Run(ctx)

	f.aggregator.Notify(ctx, sampleRun("k1", domain.VerdictPassed, day.Add(time.Hour)))

	require.Eventually(t, func() bool {
		rows, err := f.trends.GetRange(context.Background(), day, day.AddDate(0, 0, 1))
		return err == nil && len(rows) == 1 && rows[0].Passed == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-f.aggregator.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("aggregator did not stop")
	}
}

func TestAggregator_RebuildMatchesIncremental(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	runs := []domain.Run{
		sampleRun("k1", domain.VerdictPassed, now.AddDate(0, 0, -3)),
		sampleRun("k2", domain.VerdictPassed, now.AddDate(0, 0, -3)),
		sampleRun("k3", domain.VerdictBlocked, now.AddDate(0, 0, -1)),
		sampleRun("k4", domain.VerdictError, now),
	}
	for _, run := range runs {
		commit(t, f, run)
		require.NoError(t, f.aggregator.Apply(ctx, run))
	}

	incremental, err := f.trends.GetRange(ctx, now.AddDate(0, 0, -7), now.AddDate(0, 0, 1))
	require.NoError(t, err)

	require.NoError(t, f.aggregator.Rebuild(ctx, 7*24*time.Hour))

	rebuilt, err := f.trends.GetRange(ctx, now.AddDate(0, 0, -7), now.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Equal(t, incremental, rebuilt,
		"rebuild must reproduce the incrementally maintained buckets")
}

func TestAggregator_RebuildRepairsMissedIncrements(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// A run committed without its trend increment, as after a crash
	// between commit and aggregate update.
	commit(t, f, sampleRun("k1", domain.VerdictPassed, now))

	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	rows, err := f.trends.GetRange(ctx, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, f.aggregator.Rebuild(ctx, 24*time.Hour))

	rows, err = f.trends.GetRange(ctx, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Passed)
}

func TestAggregator_GetTrend(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := sampleRun("k-old", domain.VerdictPassed, now.AddDate(0, 0, -40))
	recent := sampleRun("k-new", domain.VerdictBlocked, now)
	require.NoError(t, f.aggregator.Apply(ctx, old))
	require.NoError(t, f.aggregator.Apply(ctx, recent))

	points, err := f.aggregator.GetTrend(ctx, 30)
	require.NoError(t, err)
	require.Len(t, points, 1, "points outside the window are excluded")
	assert.Equal(t, 1, points[0].Blocked)
}

func TestAggregator_NotifyNeverBlocks(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	run := sampleRun("k1", domain.VerdictPassed, time.Now().UTC())

	// No consumer is draining the signal channel; an overfull buffer
	// must drop rather than stall the submitter.
	for i := 0; i < signalBuffer*2; i++ {
		f.aggregator.Notify(ctx, run)
	}
}

type incrementFailure struct {
	duckdbtrend.Store
}

func (incrementFailure) Increment(context.Context, store.TrendRow) error {
	return fmt.Errorf("bucket write refused")
}

func TestAggregator_RebuildFailureLeavesWindowIntact(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	run := sampleRun("k1", domain.VerdictPassed, now)
	commit(t, f, run)
	require.NoError(t, f.aggregator.Apply(ctx, run))

	broken := NewAggregator(f.db, f.runs, incrementFailure{f.trends})
	require.Error(t, broken.Rebuild(ctx, 24*time.Hour))

	// The failed rebuild rolled back its window delete.
	rows, err := f.trends.GetRange(ctx, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Passed)
}
