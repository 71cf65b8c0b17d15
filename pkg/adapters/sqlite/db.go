// Package sqlite implements the graph and job stores on an embedded SQLite
// database (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS graphs (
	uid     TEXT PRIMARY KEY,
	label   TEXT NOT NULL,
	created INTEGER NOT NULL,
	doc     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS node_types (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS jobs (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	graph_id   TEXT NOT NULL,
	status     TEXT NOT NULL,
	task_id    TEXT NOT NULL DEFAULT '',
	metadata   TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	output     BLOB
);
CREATE INDEX IF NOT EXISTS jobs_graph ON jobs (graph_id, seq);
CREATE TABLE IF NOT EXISTS job_logs (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id     TEXT NOT NULL,
	message    TEXT NOT NULL,
	node_uid   TEXT NOT NULL DEFAULT '',
	node_label TEXT NOT NULL DEFAULT '',
	time       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS job_logs_job ON job_logs (job_id, seq);
`

// Open opens (creating if needed) the database at path and applies the
// schema. SQLite allows one writer, so the pool is limited to a single
// connection.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to configure sqlite: %w", err)
		}
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the tables when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}
	return nil
}
