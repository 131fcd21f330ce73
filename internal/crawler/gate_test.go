package crawler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGate_NoRotationBelowThreshold(t *testing.T) {
	t.Parallel()

	rotator := &fakeRotator{}
	g := NewGate(NewOutcomeWindow(10), rotator, GateConfig{FailureThreshold: 3}, zap.NewNop())

	g.Record(true)
	g.Record(false)
	g.Record(false)

	outcome, err := g.MaybeRotate(context.Background())
	require.NoError(t, err)
	require.Equal(t, RotationNotNeeded, outcome)
	require.Equal(t, 0, rotator.count())
}

func TestGate_RotatesAndResetsWindow(t *testing.T) {
	t.Parallel()

	rotator := &fakeRotator{}
	window := NewOutcomeWindow(10)
	g := NewGate(window, rotator, GateConfig{FailureThreshold: 1}, zap.NewNop())

	g.Record(false)
	outcome, err := g.MaybeRotate(context.Background())
	require.NoError(t, err)
	require.Equal(t, Rotated, outcome)
	require.Equal(t, 1, rotator.count())
	require.Equal(t, 1, g.Rotations())
	require.Equal(t, RotationIdle, g.State())

	// The window starts clean on the new identity.
	require.Equal(t, 0, window.Len())
	require.Equal(t, WindowTotals{}, window.Totals())

	outcome, err = g.MaybeRotate(context.Background())
	require.NoError(t, err)
	require.Equal(t, RotationNotNeeded, outcome)
	require.Equal(t, 1, rotator.count())
}

func TestGate_RotationLimitExhausted(t *testing.T) {
	t.Parallel()

	rotator := &fakeRotator{}
	g := NewGate(NewOutcomeWindow(10), rotator, GateConfig{FailureThreshold: 1, RotationLimit: 1}, zap.NewNop())

	g.Record(false)
	outcome, err := g.MaybeRotate(context.Background())
	require.NoError(t, err)
	require.Equal(t, Rotated, outcome)

	g.Record(false)
	outcome, err = g.MaybeRotate(context.Background())
	require.Equal(t, RotationFailed, outcome)
	require.ErrorIs(t, err, ErrRotationExhausted)
	require.Equal(t, 1, rotator.count())
}

func TestGate_BackendFailureIsFatalAndLeavesWindowIntact(t *testing.T) {
	t.Parallel()

	rotator := &fakeRotator{err: errors.New("allocate address: quota exceeded")}
	window := NewOutcomeWindow(10)
	g := NewGate(window, rotator, GateConfig{FailureThreshold: 1}, zap.NewNop())

	g.Record(false)
	outcome, err := g.MaybeRotate(context.Background())
	require.Equal(t, RotationFailed, outcome)
	require.ErrorIs(t, err, ErrRotationBackend)
	require.Equal(t, RotationIdle, g.State())
	require.Equal(t, 0, g.Rotations())
	require.Equal(t, 1, window.FailureCount())
}

func TestGate_ConcurrentCallersRotateOnce(t *testing.T) {
	t.Parallel()

	rotator := &fakeRotator{}
	g := NewGate(NewOutcomeWindow(10), rotator, GateConfig{FailureThreshold: 1}, zap.NewNop())
	g.Record(false)

	var wg sync.WaitGroup
	outcomes := make([]RotationOutcome, 8)
	for i := range outcomes {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			outcome, err := g.MaybeRotate(context.Background())
			require.NoError(t, err)
			outcomes[slot] = outcome
		}(i)
	}
	wg.Wait()

	rotated := 0
	for _, outcome := range outcomes {
		if outcome == Rotated {
			rotated++
		}
	}
	// Exactly one caller wins; the rest observe the reset window.
	require.Equal(t, 1, rotated)
	require.Equal(t, 1, rotator.count())
}

func TestGate_DefaultThresholdIsOne(t *testing.T) {
	t.Parallel()

	rotator := &fakeRotator{}
	g := NewGate(NewOutcomeWindow(10), rotator, GateConfig{}, zap.NewNop())

	g.Record(false)
	outcome, err := g.MaybeRotate(context.Background())
	require.NoError(t, err)
	require.Equal(t, Rotated, outcome)
}
