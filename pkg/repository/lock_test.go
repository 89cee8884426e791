package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockRepository_AcquireRelease(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()

	ok, err := repos.Lock.AcquireRunLock(ctx, "run-a", []int64{1, 2}, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repos.Lock.AcquireRunLock(ctx, "run-b", []int64{3, 2}, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "feed 2 is held")

	var held int
	require.NoError(t, repos.DB.Get(&held, "SELECT COUNT(*) FROM run_locks WHERE run_id = 'run-b'"))
	assert.Zero(t, held, "all or none, feed 3 not taken")

	ok, err = repos.Lock.AcquireRunLock(ctx, "run-b", []int64{3, -7}, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "disjoint keys, detached item key included")

	require.NoError(t, repos.Lock.ReleaseRunLock(ctx, "run-a"))
	ok, err = repos.Lock.AcquireRunLock(ctx, "run-c", []int64{1, 2}, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "released keys are free")

	ok, err = repos.Lock.AcquireRunLock(ctx, "run-d", nil, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "nothing to hold")
}

func TestLockRepository_StaleTakeover(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()

	ok, err := repos.Lock.AcquireRunLock(ctx, "dead", []int64{1}, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = repos.DB.Exec("UPDATE run_locks SET heartbeat_at = ?", time.Now().Add(-2*time.Minute).UnixMilli())
	require.NoError(t, err)

	ok, err = repos.Lock.AcquireRunLock(ctx, "live", []int64{1}, 0)
	require.NoError(t, err)
	assert.False(t, ok, "without staleAfter a hold never expires")

	ok, err = repos.Lock.AcquireRunLock(ctx, "live", []int64{1}, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "stale hold taken over")

	err = repos.Lock.RefreshRunLock(ctx, "dead")
	require.ErrorIs(t, err, ErrNotFound, "the dead run lost its hold")
}

func TestLockRepository_Refresh(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()

	ok, err := repos.Lock.AcquireRunLock(ctx, "run-a", []int64{1}, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	old := time.Now().Add(-50 * time.Second).UnixMilli()
	_, err = repos.DB.Exec("UPDATE run_locks SET heartbeat_at = ?", old)
	require.NoError(t, err)

	require.NoError(t, repos.Lock.RefreshRunLock(ctx, "run-a"))
	var heartbeat int64
	require.NoError(t, repos.DB.Get(&heartbeat, "SELECT heartbeat_at FROM run_locks WHERE feed_id = 1"))
	assert.Greater(t, heartbeat, old)

	_, err = repos.DB.Exec("UPDATE run_locks SET heartbeat_at = ?", time.Now().Add(-50*time.Second).UnixMilli())
	require.NoError(t, err)
	ok, err = repos.Lock.AcquireRunLock(ctx, "run-b", []int64{1}, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "heartbeat within staleAfter keeps the hold")
}

func TestLockRepository_SharedDatabase(t *testing.T) {
	// two handles on one file act like two processes
	dsn := filepath.Join(t.TempDir(), "podscope.db")
	open := func() *Repositories {
		repos, err := NewRepositories(context.Background(), Config{DSN: dsn})
		require.NoError(t, err)
		t.Cleanup(func() { _ = repos.Close() })
		return repos
	}
	first, second := open(), open()
	ctx := context.Background()

	ok, err := first.Lock.AcquireRunLock(ctx, "cli", []int64{1}, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Lock.AcquireRunLock(ctx, "scheduler", []int64{1}, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Lock.ReleaseRunLock(ctx, "cli"))
	ok, err = second.Lock.AcquireRunLock(ctx, "scheduler", []int64{1}, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
