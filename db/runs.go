// ABOUTME: Database operations for sync_runs and sync_log tables
// ABOUTME: Persists run reports and per-contact attempt outcomes
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jpchacon09/APOLLO/models"
)

// SyncRun is a stored run report.
type SyncRun struct {
	models.RunResult
	ErrorMessage *string
}

// SyncLogEntry is one contact attempt within a run.
type SyncLogEntry struct {
	ID          string
	RunID       string
	Email       string
	Outcome     string
	EventCount  int
	Reason      string
	Metadata    string
	AttemptedAt time.Time
}

// CreateSyncRun records the start of a run.
func CreateSyncRun(db *sql.DB, run *models.RunResult) error {
	_, err := db.Exec(`
		INSERT INTO sync_runs (id, started_at, selected)
		VALUES (?, ?, ?)
	`, run.RunID, run.StartedAt.UTC(), run.Selected)

	if err != nil {
		return fmt.Errorf("failed to create sync run: %w", err)
	}
	return nil
}

// FinishSyncRun stores the final counters of a run.
func FinishSyncRun(db *sql.DB, run *models.RunResult, errorMsg *string) error {
	var errorMsgVal, abortReason sql.NullString
	if errorMsg != nil {
		errorMsgVal = sql.NullString{String: *errorMsg, Valid: true}
	}
	if run.AbortReason != "" {
		abortReason = sql.NullString{String: run.AbortReason, Valid: true}
	}

	_, err := db.Exec(`
		UPDATE sync_runs SET
			finished_at = ?,
			selected = ?,
			succeeded = ?,
			empty = ?,
			failed = ?,
			enriched = ?,
			checkpoints = ?,
			aborted = ?,
			abort_reason = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt.UTC(), run.Selected, run.Succeeded, run.Empty, run.Failed, run.Enriched,
		run.Checkpoints, run.Aborted, abortReason, errorMsgVal, run.RunID)

	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}
	return nil
}

// GetRecentSyncRuns returns the latest runs, newest first.
func GetRecentSyncRuns(db *sql.DB, limit int) ([]SyncRun, error) {
	rows, err := db.Query(`
		SELECT id, started_at, finished_at, selected, succeeded, empty, failed, enriched,
			checkpoints, aborted, abort_reason, error_message
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []SyncRun
	for rows.Next() {
		var run SyncRun
		var finishedAt sql.NullTime
		var abortReason, errorMessage sql.NullString

		err := rows.Scan(
			&run.RunID,
			&run.StartedAt,
			&finishedAt,
			&run.Selected,
			&run.Succeeded,
			&run.Empty,
			&run.Failed,
			&run.Enriched,
			&run.Checkpoints,
			&run.Aborted,
			&abortReason,
			&errorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}

		if finishedAt.Valid {
			run.FinishedAt = finishedAt.Time
		}
		run.AbortReason = abortReason.String
		if errorMessage.Valid {
			run.ErrorMessage = &errorMessage.String
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}
	return runs, nil
}

// CreateSyncLog records the outcome of one contact attempt.
func CreateSyncLog(db *sql.DB, runID, email, outcome string, eventCount int, reason, metadata string) error {
	_, err := db.Exec(`
		INSERT INTO sync_log (id, run_id, email, outcome, event_count, reason, metadata, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, uuid.NewString(), runID, email, outcome, eventCount, reason, metadata)

	if err != nil {
		return fmt.Errorf("failed to create sync log: %w", err)
	}
	return nil
}

// GetSyncLog returns the attempts of a run in insertion order.
func GetSyncLog(db *sql.DB, runID string) ([]SyncLogEntry, error) {
	rows, err := db.Query(`
		SELECT id, run_id, email, outcome, event_count, reason, metadata, attempted_at
		FROM sync_log
		WHERE run_id = ?
		ORDER BY rowid
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []SyncLogEntry
	for rows.Next() {
		var e SyncLogEntry
		var reason, metadata sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Email, &e.Outcome, &e.EventCount, &reason, &metadata, &e.AttemptedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		e.Reason = reason.String
		e.Metadata = metadata.String
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync log: %w", err)
	}
	return entries, nil
}
