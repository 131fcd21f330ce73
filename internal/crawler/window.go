package crawler

import "sync"

// WindowTotals are the lifetime counters carried alongside the window. They
// reset together with the window contents on rotation.
type WindowTotals struct {
	Requests  int
	Successes int
	Failures  int
}

// OutcomeWindow is a bounded history of recent fetch results. It behaves as
// a ring buffer of success flags: once capacity entries are held, recording
// evicts the oldest. All reads and writes are linearized through one
// exclusive critical section per call.
type OutcomeWindow struct {
	mu       sync.Mutex
	entries  []bool
	capacity int
	totals   WindowTotals
}

// NewOutcomeWindow builds a window holding at most capacity entries.
func NewOutcomeWindow(capacity int) *OutcomeWindow {
	if capacity <= 0 {
		capacity = 10
	}
	return &OutcomeWindow{
		entries:  make([]bool, 0, capacity),
		capacity: capacity,
	}
}

// Record appends one result, evicting the oldest entry at capacity.
func (w *OutcomeWindow) Record(success bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.entries) == w.capacity {
		w.entries = append(w.entries[:0], w.entries[1:]...)
	}
	w.entries = append(w.entries, success)

	w.totals.Requests++
	if success {
		w.totals.Successes++
	} else {
		w.totals.Failures++
	}
}

// FailureCount returns the number of failures among the current contents.
func (w *OutcomeWindow) FailureCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failuresLocked()
}

// ThresholdExceeded reports whether the failure count in the current
// (possibly partial) window has reached threshold. Thresholds are evaluated
// against the current length, never the target capacity, so a burst of early
// failures can trip before the window ever fills.
func (w *OutcomeWindow) ThresholdExceeded(threshold int) bool {
	if threshold <= 0 {
		threshold = 1
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failuresLocked() >= threshold
}

// Len returns the number of entries currently held.
func (w *OutcomeWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Totals returns a snapshot of the lifetime counters since the last reset.
func (w *OutcomeWindow) Totals() WindowTotals {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totals
}

// Reset empties the window and zeroes the counters. Called after a
// successful rotation so failure counts start from zero on the new identity.
func (w *OutcomeWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = w.entries[:0]
	w.totals = WindowTotals{}
}

func (w *OutcomeWindow) failuresLocked() int {
	failures := 0
	for _, ok := range w.entries {
		if !ok {
			failures++
		}
	}
	return failures
}
