// Package postgres implements the graph and job stores on PostgreSQL via a
// pgx connection pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS graphs (
	uid     TEXT PRIMARY KEY,
	label   TEXT NOT NULL,
	created TIMESTAMPTZ NOT NULL,
	doc     JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS node_types (
	id   SERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS jobs (
	seq        BIGSERIAL PRIMARY KEY,
	id         TEXT NOT NULL UNIQUE,
	graph_id   TEXT NOT NULL,
	status     TEXT NOT NULL,
	task_id    TEXT NOT NULL DEFAULT '',
	metadata   JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	output     BYTEA
);
CREATE INDEX IF NOT EXISTS jobs_graph ON jobs (graph_id, seq);
CREATE TABLE IF NOT EXISTS job_logs (
	seq        BIGSERIAL PRIMARY KEY,
	job_id     TEXT NOT NULL,
	message    TEXT NOT NULL,
	node_uid   TEXT NOT NULL DEFAULT '',
	node_label TEXT NOT NULL DEFAULT '',
	time       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS job_logs_job ON job_logs (job_id, seq);
`

// Connect opens a pool for dsn and applies the schema.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Migrate creates the tables when missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate postgres schema: %w", err)
	}
	return nil
}
