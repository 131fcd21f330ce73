package crawler

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// RotationState is the gate's lifecycle state.
type RotationState int

// Gate states. At most one rotation is ever in flight.
const (
	RotationIdle RotationState = iota
	RotationRotating
)

// RotationOutcome is the terminal result every MaybeRotate caller observes.
type RotationOutcome int

// MaybeRotate results.
const (
	RotationNotNeeded RotationOutcome = iota
	Rotated
	RotationFailed
)

// String implements fmt.Stringer for log fields.
func (o RotationOutcome) String() string {
	switch o {
	case RotationNotNeeded:
		return "not_needed"
	case Rotated:
		return "rotated"
	case RotationFailed:
		return "rotation_failed"
	default:
		return "unknown"
	}
}

// Gate owns the is-rotating flag and the mutual-exclusion boundary that
// serializes rotations against concurrent fetch accounting. The outcome
// window lives behind the same boundary: Record blocks while a rotation is
// in flight, so no fetch is counted against an identity that is being
// replaced. The actual address change is delegated to the Rotator.
type Gate struct {
	mu        sync.Mutex
	state     RotationState
	rotations int

	window    *OutcomeWindow
	rotator   Rotator
	threshold int
	limit     int // 0 means unbounded
	logger    *zap.Logger
}

// GateConfig controls rotation policy.
type GateConfig struct {
	// FailureThreshold is the window failure count that triggers a rotation.
	FailureThreshold int
	// RotationLimit caps the number of rotations per run; 0 is unbounded.
	RotationLimit int
}

// NewGate wires the gate to its window and rotation backend.
func NewGate(window *OutcomeWindow, rotator Rotator, cfg GateConfig, logger *zap.Logger) *Gate {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	return &Gate{
		window:    window,
		rotator:   rotator,
		threshold: cfg.FailureThreshold,
		limit:     cfg.RotationLimit,
		logger:    logger,
	}
}

// Record counts one fetch result into the window. It shares the gate's
// critical section, so recording waits out any rotation in flight.
func (g *Gate) Record(success bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.window.Record(success)
}

// State returns the current lifecycle state.
func (g *Gate) State() RotationState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Rotations returns how many rotations have completed this run.
func (g *Gate) Rotations() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rotations
}

// MaybeRotate checks the failure window and rotates the egress identity if
// the threshold is breached. Callers racing each other serialize on the
// gate's mutex, so a second caller observes the reset window and gets
// RotationNotNeeded instead of double-rotating. The non-nil error accompanies
// RotationFailed and is fatal for the crawl.
func (g *Gate) MaybeRotate(ctx context.Context) (RotationOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.window.ThresholdExceeded(g.threshold) {
		return RotationNotNeeded, nil
	}

	if g.limit > 0 && g.rotations >= g.limit {
		return RotationFailed, fmt.Errorf("%w: %d rotations used", ErrRotationExhausted, g.rotations)
	}

	totals := g.window.Totals()
	g.state = RotationRotating
	g.logger.Warn("Failure threshold breached; rotating egress identity",
		zap.Int("window_failures", g.window.FailureCount()),
		zap.Int("threshold", g.threshold),
		zap.Int("total_requests", totals.Requests),
		zap.Int("total_failures", totals.Failures),
	)

	address, err := g.rotator.Rotate(ctx)
	if err != nil {
		g.state = RotationIdle
		return RotationFailed, fmt.Errorf("%w: %v", ErrRotationBackend, err)
	}

	g.window.Reset()
	g.rotations++
	g.state = RotationIdle
	rotationsTotal.Inc()
	g.logger.Info("Egress identity rotated",
		zap.String("public_address", address),
		zap.Int("rotation_count", g.rotations),
	)
	return Rotated, nil
}
