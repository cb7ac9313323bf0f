// ABOUTME: Tests for sync_state operations and the sync lock
// ABOUTME: Covers lock exclusivity, stale expiry, and release bookkeeping
package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSyncStateMissing(t *testing.T) {
	db := setupTestDB(t)

	state, err := GetSyncState(db, ServiceApollo)
	require.NoError(t, err)
	assert.Nil(t, state)
	assert.False(t, state.Syncing())
}

func TestAcquireSyncLockIsExclusive(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	ok, err := AcquireSyncLock(db, ServiceApollo, "run-1", now, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = AcquireSyncLock(db, ServiceApollo, "run-2", now.Add(time.Minute), time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "second sync must not start while the first holds the lock")

	state, err := GetSyncState(db, ServiceApollo)
	require.NoError(t, err)
	assert.True(t, state.Syncing())
	require.NotNil(t, state.LockOwner)
	assert.Equal(t, "run-1", *state.LockOwner)
}

func TestAcquireSyncLockTakesOverStaleLock(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	ok, err := AcquireSyncLock(db, ServiceApollo, "run-1", now, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = AcquireSyncLock(db, ServiceApollo, "run-2", now.Add(2*time.Hour), time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	state, err := GetSyncState(db, ServiceApollo)
	require.NoError(t, err)
	assert.Equal(t, "run-2", *state.LockOwner)
}

func TestReleaseSyncLock(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	ok, err := AcquireSyncLock(db, ServiceApollo, "run-1", now, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	// A non-owner cannot release.
	require.NoError(t, ReleaseSyncLock(db, ServiceApollo, "someone-else", now, nil))
	state, err := GetSyncState(db, ServiceApollo)
	require.NoError(t, err)
	assert.True(t, state.Syncing())

	finished := now.Add(5 * time.Minute)
	require.NoError(t, ReleaseSyncLock(db, ServiceApollo, "run-1", finished, nil))

	state, err = GetSyncState(db, ServiceApollo)
	require.NoError(t, err)
	assert.Equal(t, "idle", state.Status)
	assert.Nil(t, state.LockOwner)
	require.NotNil(t, state.LastSyncTime)
	assert.True(t, state.LastSyncTime.Equal(finished))
	require.NotNil(t, state.LastRunID)
	assert.Equal(t, "run-1", *state.LastRunID)

	ok, err = AcquireSyncLock(db, ServiceApollo, "run-2", finished, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseSyncLockWithError(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := AcquireSyncLock(db, ServiceApollo, "run-1", now, time.Hour)
	require.NoError(t, err)

	msg := "ledger write failed"
	require.NoError(t, ReleaseSyncLock(db, ServiceApollo, "run-1", now, &msg))

	state, err := GetSyncState(db, ServiceApollo)
	require.NoError(t, err)
	assert.Equal(t, "error", state.Status)
	assert.Equal(t, msg, *state.ErrorMessage)
	assert.Nil(t, state.LastSyncTime, "failed runs do not count as completed")
}

func TestRefreshSyncLockKeepsLockFresh(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	ok, err := AcquireSyncLock(db, ServiceApollo, "run-1", now, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = RefreshSyncLock(db, ServiceApollo, "run-1", now.Add(50*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	// Ninety minutes after acquiring but forty after the refresh.
	ok, err = AcquireSyncLock(db, ServiceApollo, "run-2", now.Add(90*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "refreshed lock is not stale")

	ok, err = RefreshSyncLock(db, ServiceApollo, "run-2", now.Add(91*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "only the owner can refresh")
}

func TestRefreshSyncLockAfterTakeover(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := AcquireSyncLock(db, ServiceApollo, "run-1", now, time.Hour)
	require.NoError(t, err)
	ok, err := AcquireSyncLock(db, ServiceApollo, "run-2", now.Add(2*time.Hour), time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = RefreshSyncLock(db, ServiceApollo, "run-1", now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnlockSyncLeavesLastSync(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := AcquireSyncLock(db, ServiceApollo, "run-1", now, time.Hour)
	require.NoError(t, err)
	require.NoError(t, ReleaseSyncLock(db, ServiceApollo, "run-1", now, nil))

	ok, err := AcquireSyncLock(db, ServiceApollo, "reconcile-1", now.Add(time.Hour), time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, UnlockSync(db, ServiceApollo, "reconcile-1", nil))

	state, err := GetSyncState(db, ServiceApollo)
	require.NoError(t, err)
	assert.Equal(t, "idle", state.Status)
	assert.Nil(t, state.LockOwner)
	require.NotNil(t, state.LastRunID)
	assert.Equal(t, "run-1", *state.LastRunID)
	require.NotNil(t, state.LastSyncTime)
	assert.True(t, state.LastSyncTime.Equal(now))
}
