package crawler

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Log file names for the terminal URL logs persisted across runs.
const (
	NoContentLog   = "no_content.log"
	RateLimitedLog = "rate_limited.log"
)

// CourtRange names one court index and the first year it publishes.
type CourtRange struct {
	Code      string `mapstructure:"code"`
	FirstYear int    `mapstructure:"first_year"`
}

// OrchestratorConfig controls listing discovery.
type OrchestratorConfig struct {
	// ListingTemplate expands to one listing URL per court and year, e.g.
	// "https://www.canlii.org/en/on/{court}/nav/date/{year}/".
	ListingTemplate string
	Courts          []CourtRange
	// FinalYear caps the year range; zero means the clock's current year.
	FinalYear int
}

// Orchestrator drives listing discovery one page at a time and feeds the
// discovered documents into the dispatcher. A listing page that fails to
// load is logged and skipped; only fatal rotation conditions abort the run.
type Orchestrator struct {
	lister     Lister
	dispatcher *Dispatcher
	store      CaseStore
	reports    ReportSink
	clock      Clock
	gate       *Gate
	cfg        OrchestratorConfig
	runID      string
	logger     *zap.Logger
}

// NewOrchestrator builds an Orchestrator.
func NewOrchestrator(
	lister Lister,
	dispatcher *Dispatcher,
	store CaseStore,
	reports ReportSink,
	clock Clock,
	gate *Gate,
	cfg OrchestratorConfig,
	runID string,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		lister:     lister,
		dispatcher: dispatcher,
		store:      store,
		reports:    reports,
		clock:      clock,
		gate:       gate,
		cfg:        cfg,
		runID:      runID,
		logger:     logger.With(zap.String("run_id", runID)),
	}
}

// Run walks every court/year listing, dispatches the documents it discovers,
// and persists the terminal URL logs and the run report. Partial progress
// survives a fatal abort: committed batches and already-appended logs remain.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	report := Report{RunID: o.runID, StartedAt: o.clock.Now()}
	o.logger.Info("Crawl starting", zap.Int("courts", len(o.cfg.Courts)))

	finalYear := o.cfg.FinalYear
	if finalYear == 0 {
		finalYear = o.clock.Now().Year()
	}

	var runErr error
	for _, court := range o.cfg.Courts {
		for year := court.FirstYear; year <= finalYear; year++ {
			if err := ctx.Err(); err != nil {
				runErr = fmt.Errorf("crawl interrupted: %w", err)
				break
			}
			if err := o.crawlListing(ctx, court.Code, year, &report); err != nil {
				runErr = err
				break
			}
		}
		if runErr != nil {
			break
		}
	}

	report.FinishedAt = o.clock.Now()
	report.Rotations = o.gate.Rotations()
	if err := o.reports.SaveReport(report); err != nil {
		o.logger.Warn("Failed to save crawl report", zap.Error(err))
	}
	o.logger.Info("Crawl finished",
		zap.Int("completed", report.Completed),
		zap.Int("no_content", report.NoContent),
		zap.Int("rate_limited", report.RateLimited),
		zap.Int("rotations", report.Rotations),
	)
	return report, runErr
}

func (o *Orchestrator) crawlListing(ctx context.Context, court string, year int, report *Report) error {
	listingURL := o.listingURL(court, year)
	logger := o.logger.With(zap.String("court", court), zap.Int("year", year))

	urls, err := o.lister.ListDocuments(ctx, listingURL)
	if err != nil {
		// A missing year is expected for younger courts; not fatal.
		logger.Error("Failed to load listing page", zap.String("url", listingURL), zap.Error(err))
		report.ListingsFail++
		return nil
	}
	report.ListingsOK++

	items := o.buildWorkItems(court, urls)
	report.Discovered += len(urls)
	logger.Info("Listing discovered",
		zap.Int("documents", len(urls)),
		zap.Int("pending", len(items)),
	)
	if len(items) == 0 {
		return nil
	}

	summary, err := o.dispatcher.Run(ctx, items)
	o.foldSummary(summary, report)
	o.persistTerminalLogs(summary)
	if err != nil {
		return fmt.Errorf("dispatch %s/%d: %w", court, year, err)
	}
	return nil
}

// buildWorkItems filters out documents whose destination already exists and
// deduplicates repeated links within the listing.
func (o *Orchestrator) buildWorkItems(court string, urls []string) []WorkItem {
	seen := make(map[string]struct{}, len(urls))
	items := make([]WorkItem, 0, len(urls))
	for _, u := range urls {
		key := CaseKey(u)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if o.store.Exists(court, key) {
			continue
		}
		items = append(items, WorkItem{URL: u, Court: court, Key: key})
	}
	return items
}

func (o *Orchestrator) foldSummary(summary DispatchSummary, report *Report) {
	report.Completed += summary.Completed
	report.AlreadyExists += summary.AlreadyExists
	report.NoContent += len(summary.NoContent)
	report.RateLimited += len(summary.RateLimited)
	report.Requeues += summary.Requeues
}

// persistTerminalLogs appends the batch's terminal URLs to the cross-run
// logs. Dedup against prior runs happens inside the store.
func (o *Orchestrator) persistTerminalLogs(summary DispatchSummary) {
	if len(summary.NoContent) > 0 {
		if err := o.store.AppendURLLog(NoContentLog, summary.NoContent); err != nil {
			o.logger.Warn("Failed to append no-content log", zap.Error(err))
		}
	}
	if len(summary.RateLimited) > 0 {
		if err := o.store.AppendURLLog(RateLimitedLog, summary.RateLimited); err != nil {
			o.logger.Warn("Failed to append rate-limited log", zap.Error(err))
		}
	}
}

func (o *Orchestrator) listingURL(court string, year int) string {
	url := strings.ReplaceAll(o.cfg.ListingTemplate, "{court}", court)
	return strings.ReplaceAll(url, "{year}", fmt.Sprintf("%d", year))
}
