// ABOUTME: Database schema definitions and migrations
// ABOUTME: Handles SQLite table creation for run state, history, and the campaign cache
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_state (
	service TEXT PRIMARY KEY,
	last_sync_time DATETIME,
	last_run_id TEXT,
	status TEXT CHECK(status IN ('idle', 'syncing', 'error')),
	error_message TEXT,
	lock_owner TEXT,
	locked_at DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sync_runs (
	id TEXT PRIMARY KEY,
	started_at DATETIME NOT NULL,
	finished_at DATETIME,
	selected INTEGER NOT NULL DEFAULT 0,
	succeeded INTEGER NOT NULL DEFAULT 0,
	empty INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	enriched INTEGER NOT NULL DEFAULT 0,
	checkpoints INTEGER NOT NULL DEFAULT 0,
	aborted INTEGER NOT NULL DEFAULT 0,
	abort_reason TEXT,
	error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at);

CREATE TABLE IF NOT EXISTS sync_log (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	email TEXT NOT NULL,
	outcome TEXT NOT NULL CHECK(outcome IN ('updated', 'empty', 'failed')),
	event_count INTEGER NOT NULL DEFAULT 0,
	reason TEXT,
	metadata TEXT,
	attempted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sync_log_run ON sync_log(run_id);
CREATE INDEX IF NOT EXISTS idx_sync_log_email ON sync_log(email);

CREATE TABLE IF NOT EXISTS engagement_events (
	signature TEXT PRIMARY KEY,
	id TEXT NOT NULL,
	recipient_email TEXT NOT NULL,
	recipient_name TEXT,
	account TEXT,
	channel TEXT NOT NULL,
	sequence_id TEXT,
	sequence_name TEXT,
	step_number INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	subject TEXT,
	created_at TEXT NOT NULL,
	sent_at TEXT,
	source TEXT NOT NULL DEFAULT 'api',
	seq INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_recipient ON engagement_events(recipient_email);
CREATE INDEX IF NOT EXISTS idx_events_created ON engagement_events(created_at);

CREATE TABLE IF NOT EXISTS campaigns (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
