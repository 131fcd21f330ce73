package crawler

import (
	"context"
	"time"
)

// Fetcher executes one fetch attempt sequence for a single request. The
// boolean mirrors the outcome's success bit; the outcome carries the full
// kind so callers can classify the work item. Implementations own their
// retry/backoff policy and rebuild their transport session on a crash; they
// never touch the outcome window themselves.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (bool, FetchOutcome)
}

// Lister discovers document URLs on one listing page, expanding any
// "load more" control until the index is exhausted.
type Lister interface {
	ListDocuments(ctx context.Context, listingURL string) ([]string, error)
}

// Rotator swaps the crawl's outbound public address and returns the new one.
// The allocate/associate/release sequencing is the implementation's problem;
// the gate only ever observes success or failure.
type Rotator interface {
	Rotate(ctx context.Context) (string, error)
}

// CaseStore persists extracted documents and the append-only terminal logs.
type CaseStore interface {
	Exists(court, key string) bool
	SaveCase(court, key, text string) error
	AppendURLLog(name string, urls []string) error
}

// ReportSink writes the end-of-run crawl report.
type ReportSink interface {
	SaveReport(report Report) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
