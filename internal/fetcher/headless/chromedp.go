// Package headless implements the rendered transport on top of chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/mpelletier/caselaw-crawler/internal/crawler"
)

// Config controls the rendered fetcher.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// ListingSelector marks a listing page as loaded.
	ListingSelector string
	// LoadMoreSelector locates the listing's "load more" control.
	LoadMoreSelector string
	// LoadMoreLimit bounds how many times the control is clicked per page.
	LoadMoreLimit    int
	RateLimitPhrases []string
}

// Fetcher implements crawler.Fetcher and crawler.Lister using a shared
// headless browser. The browser is a process-wide singleton rebuilt in place
// when the driver crashes; workers re-acquire it on every attempt rather
// than caching a context across a rebuild.
type Fetcher struct {
	cfg    Config
	policy *crawler.RetryPolicy
	logger *zap.Logger

	mu          sync.Mutex
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc
}

// New starts the headless browser and returns the fetcher.
func New(cfg Config, policy *crawler.RetryPolicy, logger *zap.Logger) (*Fetcher, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.ListingSelector == "" {
		cfg.ListingSelector = "#filterableList"
	}
	if cfg.LoadMoreLimit <= 0 {
		cfg.LoadMoreLimit = 50
	}
	f := &Fetcher{
		cfg:    cfg,
		policy: policy,
		logger: logger,
	}
	if err := f.startBrowser(); err != nil {
		return nil, err
	}
	return f, nil
}

// Close tears down the browser and allocator contexts.
func (f *Fetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browserStop != nil {
		f.browserStop()
	}
	if f.allocCancel != nil {
		f.allocCancel()
	}
}

// Fetch navigates to the request URL, optionally waiting for the readiness
// selector, and returns the rendered DOM. Rate-limited responses
// short-circuit the retry loop; a crashed driver is rebuilt before the next
// attempt.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (bool, crawler.FetchOutcome) {
	crawler.CountFetch(crawler.TransportRendered)

	var lastErr error
	for attempt := 1; attempt <= f.policy.MaxAttempts(); attempt++ {
		f.logger.Debug("Fetching with rendered transport",
			zap.String("url", request.URL),
			zap.Int("attempt", attempt),
		)

		html, status, err := f.navigate(ctx, request)
		if err == nil {
			if status == http.StatusTooManyRequests ||
				crawler.ContainsRateLimitPhrase([]byte(html), f.cfg.RateLimitPhrases) {
				crawler.RateLimitHits.Inc()
				return false, crawler.RateLimitedOutcome(status)
			}
			if err := crawler.SleepContext(ctx, f.policy.ThrottleDelay()); err != nil {
				return false, crawler.TransientOutcome(err)
			}
			return true, crawler.SuccessOutcome(status, []byte(html))
		}

		lastErr = err
		if errors.Is(err, context.Canceled) {
			crawler.CountFetchFailure(crawler.TransportRendered)
			return false, crawler.TransientOutcome(err)
		}

		wait := f.policy.Backoff(attempt)
		f.logger.Warn("Rendered fetch attempt failed",
			zap.String("url", request.URL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if isBrowserCrash(err) || attempt >= 2 {
			if rerr := f.rebuild(); rerr != nil {
				crawler.CountFetchFailure(crawler.TransportRendered)
				return false, crawler.FatalOutcome(fmt.Errorf("restart browser: %w", rerr))
			}
		}
		if err := crawler.SleepContext(ctx, wait); err != nil {
			return false, crawler.TransientOutcome(err)
		}
	}

	crawler.CountFetchFailure(crawler.TransportRendered)
	return false, crawler.TransientOutcome(fmt.Errorf("rendered fetch %s: %w", request.URL, lastErr))
}

// ListDocuments renders one listing page, clicks the "load more" control
// until it disappears, and harvests the document links.
func (f *Fetcher) ListDocuments(ctx context.Context, listingURL string) ([]string, error) {
	ok, outcome := f.Fetch(ctx, crawler.FetchRequest{
		URL:           listingURL,
		Transport:     crawler.TransportRendered,
		ReadySelector: f.cfg.ListingSelector,
	})
	if !ok {
		if outcome.Err != nil {
			return nil, fmt.Errorf("render listing %s: %w", listingURL, outcome.Err)
		}
		return nil, fmt.Errorf("render listing %s: status %d", listingURL, outcome.StatusCode)
	}
	links, err := crawler.ExtractDocumentLinks(outcome.Body, listingURL)
	if err != nil {
		return nil, err
	}
	return links, nil
}

// navigate runs one attempt in a fresh tab on the current browser. Requests
// carrying a readiness selector are treated as listing pages and get their
// load-more control expanded before the DOM snapshot.
func (f *Fetcher) navigate(ctx context.Context, request crawler.FetchRequest) (string, int, error) {
	browser := f.acquireBrowser()

	tabCtx, cancelTab := chromedp.NewContext(browser)
	defer cancelTab()

	timeout := request.Timeout
	if timeout <= 0 {
		timeout = f.cfg.NavigationTimeout
	}
	taskCtx, cancelTask := context.WithTimeout(tabCtx, timeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	actions := []chromedp.Action{
		network.Enable(),
		chromedp.Navigate(request.URL),
	}
	if request.ReadySelector != "" {
		actions = append(actions, chromedp.WaitVisible(request.ReadySelector, chromedp.ByQuery))
		actions = append(actions, f.expandListing()...)
	} else {
		actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery))
	}

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return "", 0, fmt.Errorf("chromedp run: %w", err)
	}
	return html, meta.status(), nil
}

// expandListing clicks the load-more control until it is gone or the click
// budget runs out. Pages without the control fall straight through.
func (f *Fetcher) expandListing() []chromedp.Action {
	if f.cfg.LoadMoreSelector == "" {
		return nil
	}
	selector := f.cfg.LoadMoreSelector
	return []chromedp.Action{chromedp.ActionFunc(func(ctx context.Context) error {
		for i := 0; i < f.cfg.LoadMoreLimit; i++ {
			var visible bool
			script := fmt.Sprintf(
				`(() => { const el = document.querySelector(%q); return el !== null && el.offsetParent !== null; })()`,
				selector,
			)
			if err := chromedp.Evaluate(script, &visible).Do(ctx); err != nil {
				return fmt.Errorf("probe load-more control: %w", err)
			}
			if !visible {
				return nil
			}
			if err := chromedp.Click(selector, chromedp.ByQuery).Do(ctx); err != nil {
				return fmt.Errorf("click load-more control: %w", err)
			}
			if err := chromedp.Sleep(500 * time.Millisecond).Do(ctx); err != nil {
				return err
			}
		}
		return nil
	})}
}

func (f *Fetcher) acquireBrowser() context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.browserCtx
}

// rebuild tears the browser down and starts a fresh one in place.
func (f *Fetcher) rebuild() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browserStop != nil {
		f.browserStop()
	}
	if f.allocCancel != nil {
		f.allocCancel()
	}
	f.logger.Info("Restarting headless browser")
	return f.startBrowserLocked()
}

func (f *Fetcher) startBrowser() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startBrowserLocked()
}

func (f *Fetcher) startBrowserLocked() error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if f.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserStop()
		allocCancel()
		return fmt.Errorf("chromedp warmup: %w", err)
	}
	f.allocCancel = allocCancel
	f.browserCtx = browserCtx
	f.browserStop = browserStop
	return nil
}

func isBrowserCrash(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "crash") ||
		strings.Contains(msg, "target closed") ||
		strings.Contains(msg, "context canceled: websocket")
}

// responseMeta captures the document response status from CDP events.
type responseMeta struct {
	once       sync.Once
	statusCode int
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.once.Do(func() {
		m.statusCode = int(resp.Response.Status)
	})
}

func (m *responseMeta) status() int {
	if m.statusCode == 0 {
		return http.StatusOK
	}
	return m.statusCode
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
