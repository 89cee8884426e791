package pipeline

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
)

// feedLocker is the in-process RunLocker used when the store doesn't provide one.
// It only excludes runs of the same orchestrator, holds never go stale.
type feedLocker struct {
	mu   sync.Mutex
	held map[int64]string // key to run id
}

func newFeedLocker() *feedLocker {
	return &feedLocker{held: map[int64]string{}}
}

// AcquireRunLock takes all keys or none, it returns false if any key is already held
func (l *feedLocker) AcquireRunLock(_ context.Context, runID string, keys []int64, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if slices.ContainsFunc(keys, func(k int64) bool { _, ok := l.held[k]; return ok }) {
		return false, nil
	}
	for _, k := range keys {
		l.held[k] = runID
	}
	return true, nil
}

func (l *feedLocker) RefreshRunLock(context.Context, string) error { return nil }

func (l *feedLocker) ReleaseRunLock(_ context.Context, runID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, id := range l.held {
		if id == runID {
			delete(l.held, k)
		}
	}
	return nil
}

// lock holds keys for the run and refreshes the hold every third of LockTTL until released.
// ErrRunInProgress means another run, possibly in another process, holds some of the keys.
func (o *Orchestrator) lock(ctx context.Context, runID string, keys []int64) (release func(), err error) {
	ok, err := o.Locks.AcquireRunLock(ctx, runID, keys, o.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRunInProgress
	}

	stop, stopped := make(chan struct{}), make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(max(o.cfg.LockTTL/3, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := o.Locks.RefreshRunLock(ctx, runID); err != nil {
					lgr.Printf("[WARN] run %s can't refresh its lock: %v", runID, err)
				}
			}
		}
	}()

	return func() {
		close(stop)
		<-stopped
		if err := o.Locks.ReleaseRunLock(ctx, runID); err != nil {
			lgr.Printf("[WARN] run %s can't release its lock: %v", runID, err)
		}
	}, nil
}
