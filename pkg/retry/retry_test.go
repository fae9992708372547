package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func fastRetrier(opts ...Option) *Retrier {
	base := []Option{
		WithInitialDelay(time.Millisecond),
		WithMaxDelay(2 * time.Millisecond),
		WithJitterPercent(0),
	}
	return New(append(base, opts...)...)
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastRetrier(WithMaxAttempts(3)).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ReturnsLastErrorWhenBudgetSpent(t *testing.T) {
	calls := 0
	err := fastRetrier(WithMaxAttempts(2)).Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 2, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	bad := errors.New("bad request")
	err := fastRetrier(WithMaxAttempts(5)).Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(bad)
	})

	assert.ErrorIs(t, err, bad)
	assert.False(t, IsPermanent(err), "permanent wrapper is stripped")
	assert.Equal(t, 1, calls)
}

func TestDo_RetryIf(t *testing.T) {
	calls := 0
	err := fastRetrier(
		WithMaxAttempts(5),
		WithRetryIf(func(err error) bool { return !errors.Is(err, errTransient) }),
	).Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
}

func TestDo_OnRetryHook(t *testing.T) {
	var attempts []int
	_ = fastRetrier(
		WithMaxAttempts(3),
		WithOnRetry(func(attempt int, err error, _ time.Duration) {
			attempts = append(attempts, attempt)
			assert.ErrorIs(t, err, errTransient)
		}),
	).Do(context.Background(), func(context.Context) error { return errTransient })

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDoWithData(t *testing.T) {
	calls := 0
	v, err := DoWithData(context.Background(), fastRetrier(), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errTransient
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := fastRetrier(WithMaxAttempts(5)).Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return context.Canceled
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPresets_ApplyOverrides(t *testing.T) {
	up := UpstreamRetrier().Config()
	assert.Equal(t, 3, up.MaxAttempts)
	assert.Equal(t, time.Second, up.InitialDelay)
	assert.Equal(t, 8*time.Second, up.MaxDelay)
	assert.Equal(t, uint64(20), up.JitterPercent)

	up = UpstreamRetrier(WithMaxAttempts(5), WithMaxDelay(0)).Config()
	assert.Equal(t, 5, up.MaxAttempts)
	assert.Equal(t, 8*time.Second, up.MaxDelay, "zero overrides keep the preset")

	tg := TelegramRetrier(WithRetryIf(func(error) bool { return false })).Config()
	assert.Equal(t, 500*time.Millisecond, tg.InitialDelay)
	require.NotNil(t, tg.RetryIf)
	assert.False(t, tg.RetryIf(errTransient))
}
