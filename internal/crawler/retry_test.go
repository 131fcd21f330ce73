package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_Defaults(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(RetryConfig{})
	require.Equal(t, 3, p.MaxAttempts())

	delay := p.ThrottleDelay()
	require.GreaterOrEqual(t, delay, time.Second)
	require.LessOrEqual(t, delay, time.Second+time.Second)
}

func TestRetryPolicy_BackoffDoublesAndCaps(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(RetryConfig{MaxAttempts: 10})

	first := p.Backoff(1)
	require.GreaterOrEqual(t, first, 2*time.Second)
	require.Less(t, first, 3*time.Second+time.Second)

	second := p.Backoff(2)
	require.GreaterOrEqual(t, second, 4*time.Second)

	// Well past the cap, the base stops growing.
	capped := p.Backoff(30)
	require.GreaterOrEqual(t, capped, 75*time.Second)
	require.Less(t, capped, 77*time.Second)
}

func TestRetryPolicy_ThrottleWithinConfiguredRange(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(RetryConfig{
		ThrottleMin: 10 * time.Millisecond,
		ThrottleMax: 20 * time.Millisecond,
	})
	for i := 0; i < 50; i++ {
		delay := p.ThrottleDelay()
		require.GreaterOrEqual(t, delay, 10*time.Millisecond)
		require.LessOrEqual(t, delay, 20*time.Millisecond)
	}
}

func TestSleepContext(t *testing.T) {
	t.Parallel()

	require.NoError(t, SleepContext(context.Background(), 0))
	require.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := SleepContext(ctx, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}
