package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gococo/types"
)

func TestUntilStopsWhenDone(t *testing.T) {
	calls := 0
	err := Until(context.Background(), time.Millisecond, 10, func(context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestUntilFirstCheckIsImmediate(t *testing.T) {
	start := time.Now()
	err := Until(context.Background(), time.Hour, 1, func(context.Context) (bool, error) {
		return true, nil
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUntilExhausted(t *testing.T) {
	calls := 0
	err := Until(context.Background(), time.Millisecond, 4, func(context.Context) (bool, error) {
		calls++
		return false, nil
	})
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 4, calls)
}

func TestUntilCheckErrorStops(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Until(context.Background(), time.Millisecond, 10, func(context.Context) (bool, error) {
		calls++
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestUntilContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := Until(ctx, time.Millisecond, 0, func(context.Context) (bool, error) {
		cancel()
		return false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEveryKeepsRunningThroughErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs, failures atomic.Int32

	Every(ctx, time.Millisecond, func(context.Context) error {
		if runs.Add(1) >= 5 {
			cancel()
		}
		return errors.New("rpc down")
	}, func(error) { failures.Add(1) })

	assert.GreaterOrEqual(t, runs.Load(), int32(5))
	assert.Equal(t, runs.Load(), failures.Load())
}

func TestUntilRejectsNonPositiveInterval(t *testing.T) {
	calls := 0
	err := Until(context.Background(), 0, 3, func(context.Context) (bool, error) {
		calls++
		return true, nil
	})
	assert.ErrorIs(t, err, types.ErrConfiguration)
	assert.Zero(t, calls)
}

func TestEveryReportsBadInterval(t *testing.T) {
	var reported error
	Every(context.Background(), -time.Second, func(context.Context) error {
		t.Fatal("must not run")
		return nil
	}, func(err error) { reported = err })
	assert.ErrorIs(t, reported, types.ErrConfiguration)
}

func TestWithinSpendsWholeBudget(t *testing.T) {
	cases := []struct {
		name     string
		interval time.Duration
		maxWait  time.Duration
	}{
		{"budget not a multiple of interval", 20 * time.Millisecond, 50 * time.Millisecond},
		{"budget shorter than interval", time.Second, 30 * time.Millisecond},
		{"zero interval", 0, 30 * time.Millisecond},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			start := time.Now()
			err := Within(context.Background(), tc.interval, tc.maxWait, func(context.Context) (bool, error) {
				calls++
				return false, nil
			})
			assert.ErrorIs(t, err, ErrExhausted)
			assert.GreaterOrEqual(t, time.Since(start), tc.maxWait)
			assert.Less(t, time.Since(start), tc.maxWait+time.Second)
			assert.GreaterOrEqual(t, calls, 2)
		})
	}
}

func TestWithinLastCheckAtDeadline(t *testing.T) {
	start := time.Now()
	var last time.Duration
	err := Within(context.Background(), 20*time.Millisecond, 50*time.Millisecond, func(context.Context) (bool, error) {
		last = time.Since(start)
		return false, nil
	})
	assert.ErrorIs(t, err, ErrExhausted)
	assert.GreaterOrEqual(t, last, 50*time.Millisecond)
}

func TestWithinStopsWhenDone(t *testing.T) {
	calls := 0
	err := Within(context.Background(), time.Millisecond, time.Minute, func(context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithinContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := Within(ctx, time.Hour, time.Hour, func(context.Context) (bool, error) {
		cancel()
		return false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
