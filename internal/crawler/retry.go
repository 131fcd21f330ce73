package crawler

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"
)

// RetryPolicy produces jittered exponential backoff delays plus the
// randomized inter-request throttle applied after successful fetches.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	throttleMin time.Duration
	throttleMax time.Duration
}

// RetryConfig controls the policy knobs.
type RetryConfig struct {
	MaxAttempts int
	ThrottleMin time.Duration
	ThrottleMax time.Duration
}

// NewRetryPolicy builds a policy with the crawl defaults: up to three
// attempts, 2^attempt seconds of backoff with up to one second of jitter.
func NewRetryPolicy(cfg RetryConfig) *RetryPolicy {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ThrottleMin <= 0 {
		cfg.ThrottleMin = time.Second
	}
	if cfg.ThrottleMax < cfg.ThrottleMin {
		cfg.ThrottleMax = cfg.ThrottleMin
	}
	return &RetryPolicy{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   time.Second,
		maxDelay:    75 * time.Second,
		throttleMin: cfg.ThrottleMin,
		throttleMax: cfg.ThrottleMax,
	}
}

// MaxAttempts returns the attempt budget per request.
func (p *RetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// Backoff returns the wait before retry number attempt (1-based).
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	return time.Duration(delay) + randomJitter(time.Second)
}

// ThrottleDelay returns the randomized delay applied after every successful
// fetch. This is the system's only throttle besides the batch size itself.
func (p *RetryPolicy) ThrottleDelay() time.Duration {
	spread := p.throttleMax - p.throttleMin
	return p.throttleMin + randomJitter(spread)
}

// SleepContext sleeps for d or until the context ends, whichever comes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
