// Package collyfetcher implements the raw-HTTP transport using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/mpelletier/caselaw-crawler/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	UserAgent        string
	Timeout          time.Duration
	RateLimitPhrases []string
}

// Fetcher implements crawler.Fetcher over plain HTTP. The base collector and
// its pooled transport are process-wide state rebuilt in place when requests
// start failing; each fetch clones the current base, so workers re-acquire
// the session on every attempt instead of caching it across a rebuild.
type Fetcher struct {
	cfg    Config
	policy *crawler.RetryPolicy
	logger *zap.Logger

	mu   sync.Mutex
	base *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config, policy *crawler.RetryPolicy, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	f := &Fetcher{
		cfg:    cfg,
		policy: policy,
		logger: logger,
	}
	f.base = f.newCollector()
	return f
}

// Fetch executes the retry sequence for one request. A response recognized
// as rate limiting short-circuits the loop immediately so the caller can
// escalate instead of hammering the same identity; any other failure backs
// off exponentially before the next attempt.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (bool, crawler.FetchOutcome) {
	crawler.CountFetch(crawler.TransportRaw)

	var lastErr error
	for attempt := 1; attempt <= f.policy.MaxAttempts(); attempt++ {
		f.logger.Debug("Fetching with raw transport",
			zap.String("url", request.URL),
			zap.Int("attempt", attempt),
		)

		status, body, err := f.visit(ctx, request)
		if err == nil {
			if status == http.StatusTooManyRequests {
				crawler.RateLimitHits.Inc()
				return false, crawler.RateLimitedOutcome(status)
			}
			if crawler.ContainsRateLimitPhrase(body, f.cfg.RateLimitPhrases) {
				crawler.RateLimitHits.Inc()
				return false, crawler.RateLimitedOutcome(status)
			}
			if err := crawler.SleepContext(ctx, f.policy.ThrottleDelay()); err != nil {
				return false, crawler.TransientOutcome(err)
			}
			return true, crawler.SuccessOutcome(status, body)
		}

		lastErr = err
		if status == http.StatusTooManyRequests {
			crawler.RateLimitHits.Inc()
			return false, crawler.RateLimitedOutcome(status)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			crawler.CountFetchFailure(crawler.TransportRaw)
			return false, crawler.TransientOutcome(err)
		}

		wait := f.policy.Backoff(attempt)
		f.logger.Warn("Raw fetch attempt failed",
			zap.String("url", request.URL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		// Repeated failures often mean a poisoned connection pool; start a
		// fresh session before the next attempt.
		if attempt >= 2 {
			f.rebuild()
		}
		if err := crawler.SleepContext(ctx, wait); err != nil {
			return false, crawler.TransientOutcome(err)
		}
	}

	crawler.CountFetchFailure(crawler.TransportRaw)
	return false, crawler.TransientOutcome(fmt.Errorf("raw fetch %s: %w", request.URL, lastErr))
}

// visit performs one attempt against a clone of the current base collector.
func (f *Fetcher) visit(ctx context.Context, request crawler.FetchRequest) (int, []byte, error) {
	collector := f.acquire().Clone()
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	collector.SetRequestTimeout(timeout)

	var (
		status   int
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(request.URL)
	}()

	select {
	case <-ctx.Done():
		return status, nil, fmt.Errorf("raw fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return status, nil, fmt.Errorf("visit %s: %w", request.URL, err)
		}
		if fetchErr != nil {
			return status, nil, fmt.Errorf("response for %s: %w", request.URL, fetchErr)
		}
		return status, body, nil
	}
}

func (f *Fetcher) acquire() *colly.Collector {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.base
}

// rebuild replaces the base collector and its transport in place.
func (f *Fetcher) rebuild() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.base = f.newCollector()
	f.logger.Info("Rebuilt raw transport session")
}

func (f *Fetcher) newCollector() *colly.Collector {
	c := colly.NewCollector(colly.Async(false))
	if f.cfg.UserAgent != "" {
		c.UserAgent = f.cfg.UserAgent
	}
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	c.WithTransport(newHTTPTransport())
	return c
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
