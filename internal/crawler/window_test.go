package crawler

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutcomeWindow_EvictsOldestAtCapacity(t *testing.T) {
	t.Parallel()

	w := NewOutcomeWindow(3)
	w.Record(false)
	w.Record(true)
	w.Record(true)
	require.Equal(t, 3, w.Len())
	require.Equal(t, 1, w.FailureCount())

	// Fourth record evicts the initial failure.
	w.Record(true)
	require.Equal(t, 3, w.Len())
	require.Equal(t, 0, w.FailureCount())
}

func TestOutcomeWindow_ThresholdOnPartialWindow(t *testing.T) {
	t.Parallel()

	w := NewOutcomeWindow(10)
	w.Record(false)
	require.True(t, w.ThresholdExceeded(1))
	require.False(t, w.ThresholdExceeded(2))

	w.Record(false)
	require.True(t, w.ThresholdExceeded(2))
}

func TestOutcomeWindow_TotalsSurviveEviction(t *testing.T) {
	t.Parallel()

	w := NewOutcomeWindow(2)
	w.Record(false)
	w.Record(true)
	w.Record(true)
	w.Record(false)

	totals := w.Totals()
	require.Equal(t, WindowTotals{Requests: 4, Successes: 2, Failures: 2}, totals)
	// Only the last two entries remain in the window itself.
	require.Equal(t, 1, w.FailureCount())
}

func TestOutcomeWindow_ResetClearsEverything(t *testing.T) {
	t.Parallel()

	w := NewOutcomeWindow(5)
	w.Record(false)
	w.Record(false)
	w.Reset()

	require.Equal(t, 0, w.Len())
	require.Equal(t, 0, w.FailureCount())
	require.Equal(t, WindowTotals{}, w.Totals())
	require.False(t, w.ThresholdExceeded(1))
}

func TestOutcomeWindow_DefaultCapacity(t *testing.T) {
	t.Parallel()

	w := NewOutcomeWindow(0)
	for i := 0; i < 15; i++ {
		w.Record(false)
	}
	require.Equal(t, 10, w.Len())
	require.Equal(t, 15, w.Totals().Requests)
}

func TestOutcomeWindow_ConcurrentRecords(t *testing.T) {
	t.Parallel()

	w := NewOutcomeWindow(100)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(fail bool) {
			defer wg.Done()
			w.Record(!fail)
		}(i%2 == 0)
	}
	wg.Wait()

	require.Equal(t, 50, w.Len())
	require.Equal(t, 25, w.FailureCount())
	require.Equal(t, 50, w.Totals().Requests)
}
