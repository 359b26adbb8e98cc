package run

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/seclens/auditgate/pkg/models/domain"
	"github.com/seclens/auditgate/pkg/models/store"
	runstore "github.com/seclens/auditgate/pkg/store/run"
)

const defaultListLimit = 50

const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		idempotency_key TEXT NOT NULL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		repo_fingerprint TEXT NOT NULL,
		status TEXT NOT NULL,
		p0 INTEGER NOT NULL DEFAULT 0,
		p1 INTEGER NOT NULL DEFAULT 0,
		p2 INTEGER NOT NULL DEFAULT 0,
		p3 INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMPTZ NOT NULL,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		cost_estimate DOUBLE PRECISION NOT NULL DEFAULT 0,
		tokens_in BIGINT NOT NULL DEFAULT 0,
		tokens_out BIGINT NOT NULL DEFAULT 0,
		requested_mode TEXT,
		policy_version TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
`

const runColumns = `idempotency_key, id, repo_fingerprint, status,
		p0, p1, p2, p3,
		started_at, duration_ms, cost_estimate, tokens_in, tokens_out,
		requested_mode, policy_version, created_at`

type runStore struct {
	db *sql.DB
}

// Open connects to Postgres and ensures the runs table exists. The unique
// constraint on idempotency_key is what gives Create its insert-if-absent
// guarantee.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure runs schema: %w", err)
	}
	return db, nil
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (idempotency_key) DO NOTHING`, runColumns)

	res, err := s.db.ExecContext(ctx, query,
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
	)
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

	existing, err := s.GetByIdempotencyKey(ctx, row.IdempotencyKey)
	if err != nil {
		return false, store.RunRow{}, fmt.Errorf("read back run after conflict: %w", err)
	}
	return false, existing, nil
}

func (s *runStore) GetByIdempotencyKey(ctx context.Context, key string) (store.RunRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM runs WHERE idempotency_key = $1`, runColumns)
	return s.getOne(ctx, query, key)
}

func (s *runStore) GetByID(ctx context.Context, id string) (store.RunRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM runs WHERE id = $1`, runColumns)
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

	var (
		query string
		args  []interface{}
	)
	if filter.RepoFingerprint != "" {
		query = fmt.Sprintf(`
			SELECT %s FROM runs
			WHERE repo_fingerprint = $1
			ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, runColumns)
		args = []interface{}{filter.RepoFingerprint, limit, filter.Offset}
	} else {
		query = fmt.Sprintf(`
			SELECT %s FROM runs
			ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`, runColumns)
		args = []interface{}{limit, filter.Offset}
	}

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
		WHERE created_at >= $1
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
		WHERE created_at >= $1`

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
