// Package scheduler runs the pipeline periodically while the server is up.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/podscope/pkg/pipeline"
)

//go:generate moq -out mocks/runner.go -pkg mocks -skip-ensure -fmt goimports . Runner

// Runner makes one pipeline pass over a scope
type Runner interface {
	Run(ctx context.Context, scope pipeline.Scope, opts pipeline.Options) (*pipeline.RunResult, error)
}

// LastRun describes the most recent scheduled run
type LastRun struct {
	StartedAt time.Time
	Result    *pipeline.RunResult
	Err       string
}

// Scheduler triggers a full run on every interval tick
type Scheduler struct {
	runner   Runner
	interval time.Duration
	wg       sync.WaitGroup
	cancel   context.CancelFunc

	mu   sync.RWMutex
	last *LastRun
}

// New makes a scheduler, zero interval means hourly
func New(runner Runner, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{runner: runner, interval: interval}
}

// Start begins periodic runs, the first one right away
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.worker(ctx)
	lgr.Printf("[INFO] scheduler started with interval %v", s.interval)
}

// Stop cancels the current run and waits for the worker to exit
func (s *Scheduler) Stop() {
	lgr.Printf("[INFO] stopping scheduler...")
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	lgr.Printf("[INFO] scheduler stopped")
}

// LastRun returns the most recent scheduled run, nil before the first one completes
func (s *Scheduler) LastRun() *LastRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	res := *s.last
	return &res
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	started := time.Now()
	res, err := s.runner.Run(ctx, pipeline.Scope{}, pipeline.Options{})
	last := &LastRun{StartedAt: started, Result: res}

	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		// another run, here or in another process sharing the store, holds the feeds. the next tick picks them up
		lgr.Printf("[INFO] scheduled run skipped, %v", err)
		return
	case errors.Is(err, pipeline.ErrEmptyScope):
		lgr.Printf("[DEBUG] scheduled run skipped, no feeds")
		return
	case err != nil:
		lgr.Printf("[WARN] scheduled run failed: %v", err)
		last.Err = err.Error()
	case res != nil && !res.Empty():
		lgr.Printf("[INFO] scheduled run %s: %s", res.RunID, res)
	}

	s.mu.Lock()
	s.last = last
	s.mu.Unlock()
}
