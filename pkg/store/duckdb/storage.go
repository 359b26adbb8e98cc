package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/marcboeker/go-duckdb/v2"
)

const RunsSchema = `
	CREATE TABLE IF NOT EXISTS runs (
		idempotency_key VARCHAR NOT NULL,
		id VARCHAR NOT NULL,
		repo_fingerprint VARCHAR NOT NULL,
		status VARCHAR NOT NULL,
		p0 INTEGER NOT NULL DEFAULT 0,
		p1 INTEGER NOT NULL DEFAULT 0,
		p2 INTEGER NOT NULL DEFAULT 0,
		p3 INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMP NOT NULL,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		cost_estimate DOUBLE NOT NULL DEFAULT 0,
		tokens_in BIGINT NOT NULL DEFAULT 0,
		tokens_out BIGINT NOT NULL DEFAULT 0,
		requested_mode VARCHAR,
		policy_version VARCHAR NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (idempotency_key)
	);
`

const TrendPointsSchema = `
	CREATE TABLE IF NOT EXISTS trend_points (
		day DATE NOT NULL,
		passed INTEGER NOT NULL DEFAULT 0,
		blocked INTEGER NOT NULL DEFAULT 0,
		errored INTEGER NOT NULL DEFAULT 0,
		p0 INTEGER NOT NULL DEFAULT 0,
		p1 INTEGER NOT NULL DEFAULT 0,
		p2 INTEGER NOT NULL DEFAULT 0,
		p3 INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (day)
	);
`

var bootQueries = []string{
	RunsSchema,
	TrendPointsSchema,
}

type Settings struct {
	DbPath string
}

func NewDB(settings Settings) (*sql.DB, error) {
	c, err := duckdb.NewConnector(fmt.Sprintf("%s?threads=4", settings.DbPath), func(exec driver.ExecerContext) error {
		bootQueries := append([]string{}, bootQueries...)

		for _, query := range bootQueries {
			_, err := exec.ExecContext(context.Background(), query, nil)
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	db := sql.OpenDB(c)
	return db, nil
}
