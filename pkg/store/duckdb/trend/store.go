package trend

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/seclens/auditgate/pkg/models/store"
	"github.com/seclens/auditgate/pkg/store/duckdb"
)

// Store persists the per-day trend aggregates. Increment must be safe
// under concurrent callers: many runs commit in parallel and land on the
// same day bucket.
type Store interface {
	Increment(ctx context.Context, delta store.TrendRow) error
	GetRange(ctx context.Context, from, to time.Time) ([]store.TrendRow, error)
	DeleteRange(ctx context.Context, from, to time.Time) error
}

type trendStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &trendStore{db: db}, nil
}

// Increment adds the delta into the bucket for delta.Day, creating the
// bucket if needed. The upsert is a single atomic statement, so concurrent
// increments never lose updates.
func (s *trendStore) Increment(ctx context.Context, delta store.TrendRow) error {
	query := `
		INSERT INTO trend_points (day, passed, blocked, errored, p0, p1, p2, p3)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (day) DO UPDATE SET
			passed = trend_points.passed + excluded.passed,
			blocked = trend_points.blocked + excluded.blocked,
			errored = trend_points.errored + excluded.errored,
			p0 = trend_points.p0 + excluded.p0,
			p1 = trend_points.p1 + excluded.p1,
			p2 = trend_points.p2 + excluded.p2,
			p3 = trend_points.p3 + excluded.p3`

	err := s.exec(ctx, query,
		delta.Day,
		delta.Passed, delta.Blocked, delta.Errored,
		delta.P0, delta.P1, delta.P2, delta.P3,
	)
	if err != nil {
		return fmt.Errorf("increment trend point: %w", err)
	}
	return nil
}

// exec routes through the transaction from the context when one is
// present, so Rebuild's delete and replay commit together.
func (s *trendStore) exec(ctx context.Context, query string, args ...interface{}) error {
	if tx := duckdb.GetTransaction(ctx); tx != nil {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	}
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *trendStore) GetRange(ctx context.Context, from, to time.Time) ([]store.TrendRow, error) {
	query := `
		SELECT day, passed, blocked, errored, p0, p1, p2, p3
		FROM trend_points
		WHERE day >= ? AND day < ?
		ORDER BY day ASC`

	rows, err := s.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query trend points: %w", err)
	}
	defer rows.Close()

	points := make([]store.TrendRow, 0)
	for rows.Next() {
		var row store.TrendRow
		err := rows.Scan(
			&row.Day,
			&row.Passed, &row.Blocked, &row.Errored,
			&row.P0, &row.P1, &row.P2, &row.P3,
		)
		if err != nil {
			return nil, err
		}
		points = append(points, row)
	}
	return points, rows.Err()
}

// DeleteRange clears buckets inside the window. Rebuild uses it to start
// from a clean slate before replaying runs.
func (s *trendStore) DeleteRange(ctx context.Context, from, to time.Time) error {
	query := `DELETE FROM trend_points WHERE day >= ? AND day < ?`
	if err := s.exec(ctx, query, from, to); err != nil {
		return fmt.Errorf("delete trend points: %w", err)
	}
	return nil
}
