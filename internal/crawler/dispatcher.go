package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// DispatchSummary aggregates the terminal dispositions of one dispatcher run.
// NoContent and RateLimited carry the affected URLs for the append-only logs.
type DispatchSummary struct {
	Completed     int
	AlreadyExists int
	NoContent     []string
	RateLimited   []string
	Batches       int
	Requeues      int
}

// Dispatcher partitions pending work items into fixed-size batches, fans one
// worker out per item, and decides after each batch barrier whether the
// whole batch must be re-attempted because the egress identity rotated.
type Dispatcher struct {
	fetcher   Fetcher
	store     CaseStore
	gate      *Gate
	batchSize int
	logger    *zap.Logger
}

// DispatcherConfig controls batching.
type DispatcherConfig struct {
	BatchSize int
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(fetcher Fetcher, store CaseStore, gate *Gate, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	return &Dispatcher{
		fetcher:   fetcher,
		store:     store,
		gate:      gate,
		batchSize: cfg.BatchSize,
		logger:    logger,
	}
}

// Run works through items batch by batch until the queue drains or a fatal
// rotation condition aborts the crawl. A batch whose results trigger a
// rotation is pushed back onto the front of the queue in full, including
// items that individually succeeded: partial success is not tracked across
// an identity change, and a requeued item's side effects from the rotated
// pass are discarded as not-yet-complete.
func (d *Dispatcher) Run(ctx context.Context, items []WorkItem) (DispatchSummary, error) {
	summary := DispatchSummary{}
	pending := append([]WorkItem(nil), items...)

	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("dispatch interrupted: %w", err)
		}

		size := d.batchSize
		if size > len(pending) {
			size = len(pending)
		}
		batch := pending[:size]
		pending = pending[size:]
		summary.Batches++

		results := d.dispatchBatch(ctx, batch)

		// Window updates and rotation checks happen strictly after the
		// barrier, never interleaved with in-flight fetches of this batch.
		// The gate is asked after every record: with a window smaller than
		// the batch, a single end-of-batch check would let later successes
		// evict the very failures that should have tripped the threshold.
		rotated := false
		for _, res := range results {
			d.gate.Record(res.Class.Succeeded())
			outcome, err := d.gate.MaybeRotate(ctx)
			if outcome == RotationFailed {
				return summary, fmt.Errorf("rotation gate: %w", err)
			}
			if outcome == Rotated {
				rotated = true
				break
			}
		}

		if rotated {
			summary.Requeues++
			batchRequeuesTotal.Inc()
			d.logger.Info("Requeueing batch after identity rotation",
				zap.Int("batch_items", len(batch)),
				zap.Int("pending_items", len(pending)),
			)
			pending = append(append([]WorkItem(nil), batch...), pending...)
			continue
		}

		if err := d.commitBatch(results, &summary); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// dispatchBatch fans one worker out per item and joins them all before
// returning. Workers block for their full retry sequence; there is no
// mid-fetch cancellation.
func (d *Dispatcher) dispatchBatch(ctx context.Context, batch []WorkItem) []ItemResult {
	results := make([]ItemResult, len(batch))
	var wg sync.WaitGroup
	for i, item := range batch {
		wg.Add(1)
		go func(slot int, item WorkItem) {
			defer wg.Done()
			results[slot] = d.processItem(ctx, item)
		}(i, item)
	}
	wg.Wait()
	return results
}

// processItem classifies one work item. Items whose destination already
// exists short-circuit without any network call.
func (d *Dispatcher) processItem(ctx context.Context, item WorkItem) ItemResult {
	if d.store.Exists(item.Court, item.Key) {
		d.logger.Debug("Skipping already downloaded case",
			zap.String("court", item.Court),
			zap.String("case", item.Key),
		)
		return ItemResult{Item: item, Class: ClassAlreadyExists}
	}

	ok, outcome := d.fetcher.Fetch(ctx, FetchRequest{
		URL:       item.URL,
		Transport: TransportRaw,
	})
	if !ok {
		if outcome.Kind == OutcomeRateLimited {
			d.logger.Warn("Case fetch rate limited",
				zap.String("url", item.URL),
				zap.Int("status_code", outcome.StatusCode),
			)
		} else {
			d.logger.Warn("Case fetch failed",
				zap.String("url", item.URL),
				zap.String("outcome", outcome.Kind.String()),
				zap.Error(outcome.Err),
			)
		}
		return ItemResult{Item: item, Class: ClassRateLimited}
	}

	text, err := ExtractCaseText(outcome.Body)
	if err != nil {
		if errors.Is(err, ErrNoContent) {
			d.logger.Warn("No content found for case", zap.String("case", item.Key))
		} else {
			d.logger.Warn("Case extraction failed", zap.String("url", item.URL), zap.Error(err))
		}
		return ItemResult{Item: item, Class: ClassNoContent}
	}
	return ItemResult{Item: item, Class: ClassCompleted, Text: text}
}

// commitBatch writes the batch's terminal classifications. Reached only when
// no rotation fired, so completed payloads are safe to persist under the
// identity that fetched them.
func (d *Dispatcher) commitBatch(results []ItemResult, summary *DispatchSummary) error {
	for _, res := range results {
		switch res.Class {
		case ClassCompleted:
			if err := d.store.SaveCase(res.Item.Court, res.Item.Key, res.Text); err != nil {
				return fmt.Errorf("save case %s: %w", res.Item.Key, err)
			}
			casesSavedTotal.Inc()
			summary.Completed++
			d.logger.Info("Saved case",
				zap.String("court", res.Item.Court),
				zap.String("case", res.Item.Key),
			)
		case ClassAlreadyExists:
			summary.AlreadyExists++
		case ClassNoContent:
			summary.NoContent = append(summary.NoContent, res.Item.URL)
		case ClassRateLimited:
			summary.RateLimited = append(summary.RateLimited, res.Item.URL)
		}
	}
	return nil
}
