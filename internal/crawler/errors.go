package crawler

import "errors"

// Sentinel errors surfaced by the scheduler and transports. Callers match
// them with errors.Is; fatal rotation conditions abort the crawl.
var (
	// ErrRateLimited marks a response the upstream produced to slow us down,
	// either a 429 or a recognized throttle phrase in the body.
	ErrRateLimited = errors.New("rate limited by upstream")

	// ErrRotationExhausted is returned when the rotation limit is reached.
	// It is fatal, not retryable.
	ErrRotationExhausted = errors.New("identity rotation limit reached")

	// ErrRotationBackend wraps a failure in the external rotation service.
	// Continuing on a flagged identity would keep tripping the same
	// threshold, so this is fatal for the crawl.
	ErrRotationBackend = errors.New("identity rotation backend failed")

	// ErrNoContent marks a page that loaded but yielded no extractable text.
	ErrNoContent = errors.New("no extractable content")
)
