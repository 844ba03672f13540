package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWait записывает запрошенные паузы вместо реального сна.
func fakeWait(recorded *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*recorded = append(*recorded, d)
		return ctx.Err()
	}
}

func TestRetryer_Do(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts: 4,
		Delays:      []time.Duration{1 * time.Second, 3 * time.Second, 10 * time.Second},
	}

	t.Run("Success on first attempt, no waits", func(t *testing.T) {
		r := NewRetryer(policy)
		var waits []time.Duration
		r.wait = fakeWait(&waits)

		calls := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return nil
		}, nil)

		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.Empty(t, waits)
	})

	t.Run("Exhaustion: exactly 4 attempts with 1s/3s/10s pauses", func(t *testing.T) {
		r := NewRetryer(policy)
		var waits []time.Duration
		r.wait = fakeWait(&waits)

		opErr := errors.New("provider unavailable")
		calls := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return opErr
		}, nil)

		require.ErrorIs(t, err, opErr)
		// Ровно 4 попытки, пятой быть не должно
		assert.Equal(t, 4, calls)
		assert.Equal(t, []time.Duration{1 * time.Second, 3 * time.Second, 10 * time.Second}, waits)
	})

	t.Run("Success on third attempt stops the ladder", func(t *testing.T) {
		r := NewRetryer(policy)
		var waits []time.Duration
		r.wait = fakeWait(&waits)

		calls := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		}, nil)

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []time.Duration{1 * time.Second, 3 * time.Second}, waits)
	})

	t.Run("Non-retryable error aborts immediately", func(t *testing.T) {
		r := NewRetryer(policy)
		var waits []time.Duration
		r.wait = fakeWait(&waits)

		fatal := errors.New("fatal")
		calls := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return fatal
		}, func(err error) bool { return false })

		require.ErrorIs(t, err, fatal)
		assert.Equal(t, 1, calls)
		assert.Empty(t, waits)
	})

	t.Run("Cancelled context aborts before first attempt", func(t *testing.T) {
		r := NewRetryer(policy)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		calls := 0
		err := r.Do(ctx, func(ctx context.Context) error {
			calls++
			return nil
		}, nil)

		require.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, calls)
	})

	t.Run("Cancellation during wait stops the ladder without extra attempt", func(t *testing.T) {
		r := NewRetryer(policy)
		ctx, cancel := context.WithCancel(context.Background())
		r.wait = func(waitCtx context.Context, d time.Duration) error {
			cancel()
			return waitCtx.Err()
		}

		calls := 0
		err := r.Do(ctx, func(ctx context.Context) error {
			calls++
			return errors.New("transient")
		}, nil)

		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestRetryer_delayFor(t *testing.T) {
	r := NewRetryer(RetryPolicy{MaxAttempts: 6, Delays: []time.Duration{time.Second, 3 * time.Second}})

	assert.Equal(t, time.Second, r.delayFor(1))
	assert.Equal(t, 3*time.Second, r.delayFor(2))
	// Лестница короче числа попыток - держимся на последней ступени
	assert.Equal(t, 3*time.Second, r.delayFor(5))
}
