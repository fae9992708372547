package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_SleepAdvances(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFake(start)

	assert.NoError(t, c.Sleep(context.Background(), 3*time.Second))
	c.Advance(time.Minute)

	assert.Equal(t, start.Add(time.Minute+3*time.Second), c.Now())
	assert.Equal(t, []time.Duration{3 * time.Second}, c.Sleeps())
}

func TestFake_SleepHonoursCancelledContext(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.Sleep(ctx, time.Second), context.Canceled)
	assert.Empty(t, c.Sleeps())
}

func TestReal_SleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New().Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
