package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater/v2"
	"golang.org/x/sync/errgroup"

	"github.com/umputun/podscope/pkg/domain"
)

// RetryPolicy controls how transient failures of a unit of work are retried
type RetryPolicy struct {
	Attempts  int           // total attempts, including the first one
	BaseDelay time.Duration // delay before the second attempt, doubled after each failure
	MaxDelay  time.Duration
	Jitter    float64 // random fraction added to each delay
}

// DefaultRetryPolicy is three attempts with exponential backoff and jitter
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second, Jitter: 0.2}
}

var errStopRetry = errors.New("not retryable")

// permanentError stops the repeater on errors that can't succeed on another attempt
type permanentError struct{ err error }

func (e *permanentError) Error() string        { return e.err.Error() }
func (e *permanentError) Unwrap() error        { return e.err }
func (e *permanentError) Is(target error) bool { return target == errStopRetry }

// Do runs fn until it succeeds, fails with a non-retryable error, or attempts are exhausted.
// Returns the number of attempts made and the last error of fn.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) (attempts int, err error) {
	if p.Attempts <= 1 {
		return 1, fn(ctx)
	}

	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = time.Minute
	}
	rep := repeater.NewBackoff(p.Attempts, p.BaseDelay, repeater.WithMaxDelay(maxDelay), repeater.WithJitter(p.Jitter))

	var lastErr error
	repErr := rep.Do(ctx, func() error {
		attempts++
		lastErr = fn(ctx)
		if lastErr != nil && !domain.IsRetryable(lastErr) {
			return &permanentError{err: lastErr}
		}
		return lastErr
	}, errStopRetry)

	if repErr == nil {
		return attempts, nil
	}
	if lastErr != nil {
		return attempts, lastErr
	}
	return attempts, repErr
}

// Result is the outcome of one input processed by a Runner
type Result[In, Out any] struct {
	Index    int
	Input    In
	Value    Out
	Err      error
	Attempts int
	Skipped  bool // never dispatched because the run was cancelled or aborted
}

// Runner executes a unit of work over a batch of inputs with at most Limit calls in flight.
// Each input gets its own result, a failure of one input never affects the others.
type Runner[In, Out any] struct {
	Name  string
	Limit int
	Retry RetryPolicy
}

// Run processes inputs and returns results in input order. onResult, when set, is called once per
// dispatched input as soon as it completes, calls are serialized. An error returned by onResult
// is fatal: no more inputs are dispatched, in-flight work finishes and Run returns that error.
//
// Cancelling ctx stops dispatching. Work already running continues on a context detached from
// the cancellation so it can complete and be persisted.
func (r Runner[In, Out]) Run(ctx context.Context, inputs []In, work func(context.Context, In) (Out, error),
	onResult func(Result[In, Out]) error) ([]Result[In, Out], error) {

	if r.Name != "" && len(inputs) > 0 {
		lgr.Printf("[DEBUG] %s: %d inputs, limit %d", r.Name, len(inputs), max(r.Limit, 1))
	}
	results := make([]Result[In, Out], len(inputs))
	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()
	workCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(max(r.Limit, 1))

	var mu sync.Mutex // serializes onResult
	var fatal error

	for i, in := range inputs {
		results[i] = Result[In, Out]{Index: i, Input: in, Skipped: true}
		if dispatchCtx.Err() != nil {
			continue
		}
		g.Go(func() error {
			if dispatchCtx.Err() != nil {
				return nil
			}
			res := Result[In, Out]{Index: i, Input: in}
			res.Attempts, res.Err = r.Retry.Do(workCtx, func(ctx context.Context) error {
				v, err := work(ctx, in)
				if err == nil {
					res.Value = v
				}
				return err
			})
			results[i] = res

			if onResult == nil {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if err := onResult(res); err != nil && fatal == nil {
				fatal = err
				stopDispatch()
			}
			return nil
		})
	}
	_ = g.Wait()

	if fatal != nil {
		return results, fatal
	}
	return results, nil
}
