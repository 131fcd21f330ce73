// Package crawler defines core types shared across subsystems.
package crawler

import "time"

// TransportKind selects which fetch strategy handles a request.
type TransportKind string

// Supported transports.
const (
	TransportRendered TransportKind = "rendered"
	TransportRaw      TransportKind = "raw"
)

// FetchRequest captures everything needed to fetch one URL. Immutable once created.
type FetchRequest struct {
	URL           string
	Transport     TransportKind
	ReadySelector string
	Timeout       time.Duration
}

// OutcomeKind is the coarse result of a single fetch.
type OutcomeKind int

// Outcome kinds produced by the transport fetchers.
const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRateLimited
	OutcomeTransientError
	OutcomeFatalError
)

// String implements fmt.Stringer for log fields.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeTransientError:
		return "transient_error"
	case OutcomeFatalError:
		return "fatal_error"
	default:
		return "unknown"
	}
}

// FetchOutcome is the full result of one fetch, produced once per request.
// The scheduler only needs the success bit; callers use the kind to classify
// the work item.
type FetchOutcome struct {
	Kind       OutcomeKind
	StatusCode int
	Body       []byte
	Err        error
}

// OK reports whether the fetch produced a usable payload.
func (o FetchOutcome) OK() bool {
	return o.Kind == OutcomeSuccess
}

// SuccessOutcome builds a successful outcome carrying the payload.
func SuccessOutcome(statusCode int, body []byte) FetchOutcome {
	return FetchOutcome{Kind: OutcomeSuccess, StatusCode: statusCode, Body: body}
}

// RateLimitedOutcome marks the upstream as throttling us.
func RateLimitedOutcome(statusCode int) FetchOutcome {
	return FetchOutcome{Kind: OutcomeRateLimited, StatusCode: statusCode, Err: ErrRateLimited}
}

// TransientOutcome marks a retryable transport failure that exhausted retries.
func TransientOutcome(err error) FetchOutcome {
	return FetchOutcome{Kind: OutcomeTransientError, Err: err}
}

// FatalOutcome marks a non-retryable failure.
func FatalOutcome(err error) FetchOutcome {
	return FetchOutcome{Kind: OutcomeFatalError, Err: err}
}

// WorkItem is one document URL plus the content key it persists under.
type WorkItem struct {
	URL   string
	Court string
	Key   string
}

// Classification is the terminal disposition of a work item for one pass.
type Classification int

// Work item dispositions. RateLimited doubles as the generic failed bucket:
// the upstream's throttle response and an exhausted retry sequence land in the
// same place, matching how the failed-requests log treats them.
const (
	ClassCompleted Classification = iota
	ClassAlreadyExists
	ClassRateLimited
	ClassNoContent
)

// String implements fmt.Stringer for log fields.
func (c Classification) String() string {
	switch c {
	case ClassCompleted:
		return "completed"
	case ClassAlreadyExists:
		return "already_exists"
	case ClassRateLimited:
		return "rate_limited"
	case ClassNoContent:
		return "no_content"
	default:
		return "unknown"
	}
}

// Succeeded reports whether the disposition counts as a success for the
// outcome window. Rate limiting is the only failure input.
func (c Classification) Succeeded() bool {
	return c != ClassRateLimited
}

// ItemResult pairs a work item with its classification for one batch pass.
// Text carries the extracted document body for completed items; it is staged
// in memory until the batch commits so a rotation can discard the pass.
type ItemResult struct {
	Item  WorkItem
	Class Classification
	Text  string
}

// Report summarizes one crawl run.
type Report struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	ListingsOK    int       `json:"listings_ok"`
	ListingsFail  int       `json:"listings_failed"`
	Discovered    int       `json:"documents_discovered"`
	Completed     int       `json:"documents_completed"`
	AlreadyExists int       `json:"documents_already_present"`
	NoContent     int       `json:"documents_no_content"`
	RateLimited   int       `json:"documents_rate_limited"`
	Requeues      int       `json:"batches_requeued"`
	Rotations     int       `json:"identity_rotations"`
}
