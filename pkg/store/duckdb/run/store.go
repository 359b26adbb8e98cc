package run

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seclens/auditgate/pkg/models/domain"
	"github.com/seclens/auditgate/pkg/models/store"
	"github.com/seclens/auditgate/pkg/store/duckdb"
	runstore "github.com/seclens/auditgate/pkg/store/run"
)

const defaultListLimit = 50

const runColumns = `idempotency_key, id, repo_fingerprint, status,
		p0, p1, p2, p3,
		started_at, duration_ms, cost_estimate, tokens_in, tokens_out,
		requested_mode, policy_version, created_at`

type runStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) (runstore.Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &runStore{db: db}, nil
}

func (s *runStore) Create(ctx context.Context, row store.RunRow) (bool, store.RunRow, error) {
	query := fmt.Sprintf(`
		INSERT INTO runs (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (idempotency_key) DO NOTHING`, runColumns)

	tx := duckdb.GetTransaction(ctx)
	var res sql.Result
	var err error
	args := []interface{}{
		row.IdempotencyKey,
		row.ID,
		row.RepoFingerprint,
		row.Status,
		row.P0, row.P1, row.P2, row.P3,
		row.StartedAt,
		row.DurationMs,
		row.CostEstimate,
		row.TokensIn,
		row.TokensOut,
		row.RequestedMode,
		row.PolicyVersion,
		row.CreatedAt,
	}
	if tx == nil {
		res, err = s.db.ExecContext(ctx, query, args...)
	} else {
		res, err = tx.ExecContext(ctx, query, args...)
	}
	if err != nil {
		return false, store.RunRow{}, fmt.Errorf("insert run: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, store.RunRow{}, fmt.Errorf("insert run: %w", err)
	}
	if affected > 0 {
		return true, row, nil
	}

	// Lost the race; the earlier winner's record is the durable outcome.
	existing, err := s.GetByIdempotencyKey(ctx, row.IdempotencyKey)
	if err != nil {
		return false, store.RunRow{}, fmt.Errorf("read back run after conflict: %w", err)
	}
	return false, existing, nil
}

func (s *runStore) GetByIdempotencyKey(ctx context.Context, key string) (store.RunRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM runs WHERE idempotency_key = ?`, runColumns)
	return s.getOne(ctx, query, key)
}

func (s *runStore) GetByID(ctx context.Context, id string) (store.RunRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM runs WHERE id = ?`, runColumns)
	return s.getOne(ctx, query, id)
}

func (s *runStore) getOne(ctx context.Context, query string, arg interface{}) (store.RunRow, error) {
	row, err := scanRunRow(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return store.RunRow{}, domain.ErrRunNotFound
	}
	if err != nil {
		return store.RunRow{}, fmt.Errorf("query run: %w", err)
	}
	return row, nil
}

func (s *runStore) List(ctx context.Context, filter runstore.ListFilter) ([]store.RunRow, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := fmt.Sprintf(`SELECT %s FROM runs`, runColumns)
	args := make([]interface{}, 0, 3)
	if filter.RepoFingerprint != "" {
		query += ` WHERE repo_fingerprint = ?`
		args = append(args, filter.RepoFingerprint)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	return scanRunRows(rows)
}

func (s *runStore) ListSince(ctx context.Context, since time.Time) ([]store.RunRow, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM runs
		WHERE created_at >= ?
		ORDER BY created_at ASC`, runColumns)

	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("list runs since %s: %w", since, err)
	}
	defer rows.Close()
	return scanRunRows(rows)
}

func (s *runStore) CountByStatusSince(ctx context.Context, since time.Time) (store.StatusCounts, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'passed'),
			COUNT(*) FILTER (WHERE status = 'blocked'),
			COUNT(*) FILTER (WHERE status = 'error')
		FROM runs
		WHERE created_at >= ?`

	var counts store.StatusCounts
	err := s.db.QueryRowContext(ctx, query, since).
		Scan(&counts.Passed, &counts.Blocked, &counts.Errored)
	if err != nil {
		return store.StatusCounts{}, fmt.Errorf("count runs by status: %w", err)
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRunRow(scanner rowScanner) (store.RunRow, error) {
	var (
		row           store.RunRow
		requestedMode sql.NullString
	)
	err := scanner.Scan(
		&row.IdempotencyKey,
		&row.ID,
		&row.RepoFingerprint,
		&row.Status,
		&row.P0, &row.P1, &row.P2, &row.P3,
		&row.StartedAt,
		&row.DurationMs,
		&row.CostEstimate,
		&row.TokensIn,
		&row.TokensOut,
		&requestedMode,
		&row.PolicyVersion,
		&row.CreatedAt,
	)
	if err != nil {
		return store.RunRow{}, err
	}
	row.RequestedMode = requestedMode.String
	return row, nil
}

func scanRunRows(rows *sql.Rows) ([]store.RunRow, error) {
	records := make([]store.RunRow, 0)
	for rows.Next() {
		row, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, row)
	}
	return records, rows.Err()
}
