package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// LockRepository keeps run locks in the database, so syncs started by different processes
// over the same store exclude each other
type LockRepository struct {
	db *sqlx.DB
}

// NewLockRepository creates a new lock repository
func NewLockRepository(db *sqlx.DB) *LockRepository {
	return &LockRepository{db: db}
}

// AcquireRunLock takes every key for runID in one transaction, or none of them.
// It returns false when a live run holds any of the keys. A hold with a heartbeat older
// than staleAfter is dropped first, zero staleAfter keeps holds forever.
func (r *LockRepository) AcquireRunLock(ctx context.Context, runID string, keys []int64, staleAfter time.Duration) (bool, error) {
	if len(keys) == 0 {
		return true, nil
	}

	var acquired bool
	err := withLockRetry(ctx, func() (err error) {
		acquired = false
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() {
			if err != nil || !acquired {
				_ = tx.Rollback()
			}
		}()

		now := time.Now()
		if staleAfter > 0 {
			query, args, err := sqlx.In("DELETE FROM run_locks WHERE heartbeat_at < ? AND feed_id IN (?)",
				now.Add(-staleAfter).UnixMilli(), keys)
			if err != nil {
				return fmt.Errorf("build stale lock cleanup: %w", err)
			}
			if _, err = tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
				return fmt.Errorf("drop stale run locks: %w", err)
			}
		}

		for _, key := range keys {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO run_locks (feed_id, run_id, heartbeat_at) VALUES (?, ?, ?)
				ON CONFLICT(feed_id) DO NOTHING`, key, runID, now.UnixMilli())
			if err != nil {
				return fmt.Errorf("lock %d: %w", key, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return nil // held by another run, rolled back
			}
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		acquired = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("acquire run lock %s: %w", runID, err)
	}
	return acquired, nil
}

// RefreshRunLock moves the heartbeat of every hold of runID to now.
// ErrNotFound means the holds are gone, taken over as stale by another run.
func (r *LockRepository) RefreshRunLock(ctx context.Context, runID string) error {
	return withLockRetry(ctx, func() error {
		res, err := r.db.ExecContext(ctx, "UPDATE run_locks SET heartbeat_at = ? WHERE run_id = ?", time.Now().UnixMilli(), runID)
		if err != nil {
			return fmt.Errorf("refresh run lock %s: %w", runID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("refresh run lock %s: %w", runID, ErrNotFound)
		}
		return nil
	})
}

// ReleaseRunLock drops every hold of runID
func (r *LockRepository) ReleaseRunLock(ctx context.Context, runID string) error {
	return withLockRetry(ctx, func() error {
		if _, err := r.db.ExecContext(ctx, "DELETE FROM run_locks WHERE run_id = ?", runID); err != nil {
			return fmt.Errorf("release run lock %s: %w", runID, err)
		}
		return nil
	})
}
