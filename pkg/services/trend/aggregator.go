package trend

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/seclens/auditgate/pkg/adapters"
	"github.com/seclens/auditgate/pkg/models/domain"
	"github.com/seclens/auditgate/pkg/models/store"
	"github.com/seclens/auditgate/pkg/store/duckdb"
	trendstore "github.com/seclens/auditgate/pkg/store/duckdb/trend"
	runstore "github.com/seclens/auditgate/pkg/store/run"
)

const signalBuffer = 256

// Aggregator keeps the per-day trend buckets roughly current with the run
// store. It is a cache over the runs table, never a source of truth: a
// missed increment is recoverable through Rebuild.
type Aggregator struct {
	db      *sql.DB
	runs    runstore.Store
	trends  trendstore.Store
	signals chan domain.Run
	done    chan struct{}
}

// NewAggregator wires the aggregator over the trend database. The db handle
// must be the one backing the trend store; Rebuild scopes its delete and
// replay to a single transaction on it.
func NewAggregator(db *sql.DB, runs runstore.Store, trends trendstore.Store) *Aggregator {
	return &Aggregator{
		db:      db,
		runs:    runs,
		trends:  trends,
		signals: make(chan domain.Run, signalBuffer),
		done:    make(chan struct{}),
	}
}

func (a *Aggregator) Done() <-chan struct{} {
	return a.done
}

// Notify queues one committed run for aggregation. It never blocks the
// submitting caller: if the buffer is full the signal is dropped and the
// bucket catches up on the next Rebuild.
func (a *Aggregator) Notify(ctx context.Context, run domain.Run) {
	select {
	case a.signals <- run:
	default:
		zerolog.Ctx(ctx).Warn().
			Str("run_id", run.ID).
			Msg("trend signal buffer full, dropping increment")
	}
}

// Run consumes commit signals until the context is cancelled.
func (a *Aggregator) Run(ctx context.Context) {
	logger := zerolog.Ctx(ctx)
	defer close(a.done)

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("trend aggregator stopped")
			return
		case run := <-a.signals:
			if err := a.Apply(ctx, run); err != nil {
				logger.Error().Err(err).
					Str("run_id", run.ID).
					Msg("failed to apply trend increment")
			}
		}
	}
}

// Apply folds one run into its day bucket. Safe under concurrent commits:
// the store increment is a single atomic upsert.
func (a *Aggregator) Apply(ctx context.Context, run domain.Run) error {
	return a.trends.Increment(ctx, deltaFor(run))
}

func deltaFor(run domain.Run) store.TrendRow {
	delta := store.TrendRow{
		Day: day(run.CreatedAt),
		P0:  run.Findings.Count(domain.SeverityP0),
		P1:  run.Findings.Count(domain.SeverityP1),
		P2:  run.Findings.Count(domain.SeverityP2),
		P3:  run.Findings.Count(domain.SeverityP3),
	}
	switch run.Status {
	case domain.VerdictPassed:
		delta.Passed = 1
	case domain.VerdictBlocked:
		delta.Blocked = 1
	default:
		delta.Errored = 1
	}
	return delta
}

// Rebuild recomputes every bucket inside the window by replaying the run
// store. Used for crash recovery and to verify incremental aggregation.
// The delete and the replay commit as one transaction, so readers never
// observe a half-rebuilt window.
func (a *Aggregator) Rebuild(ctx context.Context, window time.Duration) error {
	now := time.Now().UTC()
	from := day(now.Add(-window))
	to := day(now).AddDate(0, 0, 1)

	runs, err := a.runs.ListSince(ctx, from)
	if err != nil {
		return fmt.Errorf("replay runs: %w", err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild transaction: %w", err)
	}
	txCtx := duckdb.WithTransaction(ctx, tx)

	if err := a.trends.DeleteRange(txCtx, from, to); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear trend window: %w", err)
	}
	for _, row := range runs {
		if err := a.Apply(txCtx, adapters.MapStoreRowToDomainRun(row)); err != nil {
			tx.Rollback()
			return fmt.Errorf("replay run %s: %w", row.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rebuild: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Int("runs", len(runs)).
		Time("from", from).
		Msg("trend window rebuilt")
	return nil
}

// GetTrend returns the last `days` day buckets, oldest first. Days with no
// runs are absent.
func (a *Aggregator) GetTrend(ctx context.Context, days int) ([]domain.TrendPoint, error) {
	now := time.Now().UTC()
	from := day(now.AddDate(0, 0, -(days - 1)))
	to := day(now).AddDate(0, 0, 1)

	rows, err := a.trends.GetRange(ctx, from, to)
	if err != nil {
		return nil, err
	}

	points := make([]domain.TrendPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, adapters.MapStoreTrendRowToDomain(row))
	}
	return points, nil
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
