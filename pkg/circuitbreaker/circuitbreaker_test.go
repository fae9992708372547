package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type manualClock struct{ now time.Time }

func (m *manualClock) Now() time.Time { return m.now }

func fail(context.Context) error { return errBoom }
func ok(context.Context) error   { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	clk := &manualClock{now: time.Unix(1000, 0)}
	var transitions []string
	b := New("test",
		WithFailureThreshold(3),
		WithCooldown(10*time.Second),
		WithClock(clk.Now),
		WithOnStateChange(func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(context.Background(), fail), errBoom)
	}

	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Execute(context.Background(), ok), ErrOpen)
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	clk := &manualClock{now: time.Unix(1000, 0)}
	b := New("test",
		WithFailureThreshold(1),
		WithSuccessThreshold(2),
		WithMaxProbes(1),
		WithCooldown(10*time.Second),
		WithClock(clk.Now),
	)

	require.Error(t, b.Execute(context.Background(), fail))
	require.Equal(t, StateOpen, b.State())

	clk.now = clk.now.Add(11 * time.Second)

	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrProbeLimit)
	b.Record(nil)

	require.NoError(t, b.Execute(context.Background(), ok))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clk := &manualClock{now: time.Unix(1000, 0)}
	b := New("test", WithFailureThreshold(1), WithCooldown(time.Second), WithClock(clk.Now))

	require.Error(t, b.Execute(context.Background(), fail))
	clk.now = clk.now.Add(2 * time.Second)

	assert.ErrorIs(t, b.Execute(context.Background(), fail), errBoom)
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, clk.now, b.Stats().OpenedAt)
}

func TestBreaker_IgnoresCancellationAndClassifiedErrors(t *testing.T) {
	notFound := errors.New("not found")
	b := New("test",
		WithFailureThreshold(1),
		WithIsFailure(func(err error) bool { return !errors.Is(err, notFound) }),
	)

	_ = b.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	_ = b.Execute(context.Background(), func(context.Context) error { return notFound })

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, uint64(2), b.Stats().Calls)
	assert.Equal(t, uint64(0), b.Stats().Failures)
}

func TestBreaker_Reset(t *testing.T) {
	b := New("test", WithFailureThreshold(1))
	require.Error(t, b.Execute(context.Background(), fail))
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, Stats{}, b.Stats())
}
