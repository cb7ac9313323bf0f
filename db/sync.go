// ABOUTME: Database operations for the sync_state table
// ABOUTME: Tracks service status and provides the cross-process sync lock
package db

import (
	"database/sql"
	"fmt"
	"time"
)

// SyncState represents the sync state for a service.
type SyncState struct {
	Service      string
	LastSyncTime *time.Time
	LastRunID    *string
	Status       string
	ErrorMessage *string
	LockOwner    *string
	LockedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Syncing reports whether a sync currently holds the lock.
func (s *SyncState) Syncing() bool {
	return s != nil && s.Status == "syncing"
}

const syncStateColumns = `service, last_sync_time, last_run_id, status, error_message, lock_owner, locked_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncState(row rowScanner) (*SyncState, error) {
	var state SyncState
	var lastSyncTime, lockedAt sql.NullTime
	var lastRunID, errorMessage, lockOwner sql.NullString

	err := row.Scan(
		&state.Service,
		&lastSyncTime,
		&lastRunID,
		&state.Status,
		&errorMessage,
		&lockOwner,
		&lockedAt,
		&state.CreatedAt,
		&state.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastSyncTime.Valid {
		state.LastSyncTime = &lastSyncTime.Time
	}
	if lastRunID.Valid {
		state.LastRunID = &lastRunID.String
	}
	if errorMessage.Valid {
		state.ErrorMessage = &errorMessage.String
	}
	if lockOwner.Valid {
		state.LockOwner = &lockOwner.String
	}
	if lockedAt.Valid {
		state.LockedAt = &lockedAt.Time
	}
	return &state, nil
}

// GetSyncState retrieves the sync state for a service.
func GetSyncState(db *sql.DB, service string) (*SyncState, error) {
	state, err := scanSyncState(db.QueryRow(`
		SELECT `+syncStateColumns+`
		FROM sync_state
		WHERE service = ?
	`, service))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	return state, nil
}

// AcquireSyncLock marks the service as syncing for owner. It succeeds when no
// sync is running or the running one has held the lock longer than ttl.
func AcquireSyncLock(db *sql.DB, service, owner string, now time.Time, ttl time.Duration) (bool, error) {
	now = now.UTC()
	staleBefore := now.Add(-ttl)

	res, err := db.Exec(`
		INSERT INTO sync_state (service, status, lock_owner, locked_at, created_at, updated_at)
		VALUES (?, 'syncing', ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(service) DO UPDATE SET
			status = 'syncing',
			lock_owner = excluded.lock_owner,
			locked_at = excluded.locked_at,
			error_message = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE sync_state.status IS NOT 'syncing'
			OR sync_state.locked_at IS NULL
			OR sync_state.locked_at < ?
	`, service, owner, now, staleBefore)
	if err != nil {
		return false, fmt.Errorf("failed to acquire sync lock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	return n > 0, nil
}

// ReleaseSyncLock ends owner's sync. A nil errorMsg records success: status idle
// and last_sync_time set to finishedAt.
func ReleaseSyncLock(db *sql.DB, service, owner string, finishedAt time.Time, errorMsg *string) error {
	status := "idle"
	var errorMsgVal sql.NullString
	if errorMsg != nil {
		status = "error"
		errorMsgVal = sql.NullString{String: *errorMsg, Valid: true}
	}

	_, err := db.Exec(`
		UPDATE sync_state SET
			status = ?,
			error_message = ?,
			last_sync_time = CASE WHEN ? = 'idle' THEN ? ELSE last_sync_time END,
			last_run_id = ?,
			lock_owner = NULL,
			locked_at = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE service = ? AND lock_owner = ?
	`, status, errorMsgVal, status, finishedAt.UTC(), owner, service, owner)

	if err != nil {
		return fmt.Errorf("failed to release sync lock: %w", err)
	}

	return nil
}

// RefreshSyncLock renews owner's lock at now. It reports false when owner no
// longer holds the lock.
func RefreshSyncLock(db *sql.DB, service, owner string, now time.Time) (bool, error) {
	res, err := db.Exec(`
		UPDATE sync_state SET
			locked_at = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE service = ? AND status = 'syncing' AND lock_owner = ?
	`, now.UTC(), service, owner)
	if err != nil {
		return false, fmt.Errorf("failed to refresh sync lock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to refresh sync lock: %w", err)
	}
	return n > 0, nil
}

// UnlockSync ends owner's hold on the lock without recording a completed sync.
// last_sync_time and last_run_id are left as they were.
func UnlockSync(db *sql.DB, service, owner string, errorMsg *string) error {
	status := "idle"
	var errorMsgVal sql.NullString
	if errorMsg != nil {
		status = "error"
		errorMsgVal = sql.NullString{String: *errorMsg, Valid: true}
	}

	_, err := db.Exec(`
		UPDATE sync_state SET
			status = ?,
			error_message = ?,
			lock_owner = NULL,
			locked_at = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE service = ? AND lock_owner = ?
	`, status, errorMsgVal, service, owner)

	if err != nil {
		return fmt.Errorf("failed to unlock sync: %w", err)
	}

	return nil
}
