package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/podscope/pkg/domain"
)

func fastRetry() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryPolicy_Do(t *testing.T) {
	netErr := domain.NewStageError(domain.StageAcquire, domain.CodeNetwork, errors.New("connection reset"))

	t.Run("fails three times then would succeed", func(t *testing.T) {
		var calls int32
		attempts, err := fastRetry().Do(context.Background(), func(context.Context) error {
			if atomic.AddInt32(&calls, 1) <= 3 {
				return netErr
			}
			return nil
		})
		require.Error(t, err)
		require.ErrorIs(t, err, netErr)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "fourth attempt must never be made")
	})

	t.Run("succeeds on the last attempt", func(t *testing.T) {
		var calls int32
		attempts, err := fastRetry().Do(context.Background(), func(context.Context) error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return netErr
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		var calls int32
		permErr := domain.StageErrorf(domain.StageAcquire, domain.CodeUnsupportedFormat, "video/mp4")
		attempts, err := fastRetry().Do(context.Background(), func(context.Context) error {
			atomic.AddInt32(&calls, 1)
			return permErr
		})
		require.ErrorIs(t, err, permErr)
		assert.Equal(t, domain.CodeUnsupportedFormat, domain.CodeOf(err))
		assert.Equal(t, 1, attempts)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("untyped error is not retried", func(t *testing.T) {
		attempts, err := fastRetry().Do(context.Background(), func(context.Context) error {
			return errors.New("boom")
		})
		require.EqualError(t, err, "boom")
		assert.Equal(t, 1, attempts)
	})

	t.Run("single attempt policy", func(t *testing.T) {
		var calls int32
		attempts, err := RetryPolicy{}.Do(context.Background(), func(context.Context) error {
			atomic.AddInt32(&calls, 1)
			return netErr
		})
		require.ErrorIs(t, err, netErr)
		assert.Equal(t, 1, attempts)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestRunner_Isolation(t *testing.T) {
	inputs := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	bad := domain.StageErrorf(domain.StageAcquire, domain.CodeNotFound, "gone")
	runner := Runner[int, string]{Name: "test", Limit: 3, Retry: fastRetry()}

	var persisted []int
	results, err := runner.Run(context.Background(), inputs, func(_ context.Context, in int) (string, error) {
		if in == 4 {
			return "", bad
		}
		return fmt.Sprintf("item-%d", in), nil
	}, func(r Result[int, string]) error {
		persisted = append(persisted, r.Input)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, results, 10)
	assert.Len(t, persisted, 10, "every item reported to the caller")

	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.False(t, r.Skipped)
		if i == 4 {
			require.ErrorIs(t, r.Err, bad)
			assert.Equal(t, 1, r.Attempts)
			continue
		}
		require.NoError(t, r.Err)
		assert.Equal(t, fmt.Sprintf("item-%d", i), r.Value)
	}
}

func TestRunner_ConcurrencyCeiling(t *testing.T) {
	const step = 100 * time.Millisecond
	runner := Runner[int, int]{Limit: 2}

	var inFlight, peak int32
	start := time.Now()
	results, err := runner.Run(context.Background(), []int{1, 2, 3, 4, 5}, func(_ context.Context, in int) (int, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(step)
		atomic.AddInt32(&inFlight, -1)
		return in * 10, nil
	}, nil)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Len(t, results, 5)
	assert.Equal(t, int32(2), atomic.LoadInt32(&peak))
	// ceil(5/2) rounds of one step each
	assert.GreaterOrEqual(t, elapsed, 3*step)
	assert.Less(t, elapsed, 5*step)
	for i, r := range results {
		assert.Equal(t, (i+1)*10, r.Value)
	}
}

func TestRunner_FatalResultStopsDispatch(t *testing.T) {
	runner := Runner[int, int]{Limit: 1}
	storeDown := errors.New("store unreachable")

	var calls int32
	results, err := runner.Run(context.Background(), []int{1, 2, 3, 4, 5}, func(_ context.Context, in int) (int, error) {
		atomic.AddInt32(&calls, 1)
		return in, nil
	}, func(Result[int, int]) error {
		return storeDown
	})
	require.ErrorIs(t, err, storeDown)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Len(t, results, 5)
	assert.False(t, results[0].Skipped)
	for _, r := range results[1:] {
		assert.True(t, r.Skipped)
	}
}

func TestRunner_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := Runner[int, int]{Limit: 1}

	var mu sync.Mutex
	var persisted []int
	results, err := runner.Run(ctx, []int{1, 2, 3}, func(workCtx context.Context, in int) (int, error) {
		cancel() // interrupt arrives while the first item is in flight
		time.Sleep(10 * time.Millisecond)
		if workCtx.Err() != nil {
			return 0, workCtx.Err()
		}
		return in, nil
	}, func(r Result[int, int]) error {
		mu.Lock()
		defer mu.Unlock()
		persisted = append(persisted, r.Value)
		return nil
	})
	require.NoError(t, err)
	require.Error(t, ctx.Err())

	assert.Equal(t, []int{1}, persisted, "in-flight item finished and persisted")
	assert.NoError(t, results[0].Err)
	assert.True(t, results[1].Skipped)
	assert.True(t, results[2].Skipped)
}

func TestRunner_Empty(t *testing.T) {
	results, err := Runner[int, int]{Limit: 4}.Run(context.Background(), nil,
		func(context.Context, int) (int, error) { return 0, nil }, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
