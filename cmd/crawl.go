package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mpelletier/caselaw-crawler/internal/clock/system"
	"github.com/mpelletier/caselaw-crawler/internal/config"
	"github.com/mpelletier/caselaw-crawler/internal/crawler"
	collyfetcher "github.com/mpelletier/caselaw-crawler/internal/fetcher/colly"
	"github.com/mpelletier/caselaw-crawler/internal/fetcher/headless"
	"github.com/mpelletier/caselaw-crawler/internal/id/uuid"
	"github.com/mpelletier/caselaw-crawler/internal/logging"
	"github.com/mpelletier/caselaw-crawler/internal/rotation"
	"github.com/mpelletier/caselaw-crawler/internal/store"
)

// newCrawlCmd creates the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Starts the case-law crawl",
		Long: `Walks every configured court's yearly listings, downloads the case
documents that are not yet on disk, and records no-content and
rate-limited URLs for later runs.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		File:        logPath(cfg.Crawler.OutputDir, cfg.Logging.File),
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
	})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Addr != "" {
		stopMetrics := serveMetrics(cfg.Metrics.Addr, logger)
		defer stopMetrics()
	}

	orchestrator, closeFn, err := buildOrchestrator(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	report, err := orchestrator.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Crawl aborted", zap.Error(err))
		return fmt.Errorf("crawl: %w", err)
	}

	logger.Info("Crawl command finished",
		zap.Int("completed", report.Completed),
		zap.Int("rotations", report.Rotations),
	)
	return nil
}

func buildOrchestrator(ctx context.Context, cfg config.Config, logger *zap.Logger) (*crawler.Orchestrator, func(), error) {
	runID, err := uuid.NewGenerator().NewID()
	if err != nil {
		return nil, nil, fmt.Errorf("generate run id: %w", err)
	}

	clock := system.New()
	caseStore, err := store.New(cfg.Crawler.OutputDir, clock, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init store: %w", err)
	}

	policy := crawler.NewRetryPolicy(crawler.RetryConfig{
		MaxAttempts: cfg.Crawler.MaxRetries,
		ThrottleMin: cfg.Crawler.RequestDelayMin,
		ThrottleMax: cfg.Crawler.RequestDelayMax,
	})

	rendered, err := headless.New(headless.Config{
		UserAgent:         cfg.Crawler.UserAgent,
		NavigationTimeout: cfg.Crawler.NavigationTimeout,
		ListingSelector:   cfg.Crawler.ListingSelector,
		LoadMoreSelector:  cfg.Crawler.LoadMoreSelector,
		RateLimitPhrases:  cfg.Crawler.RateLimitPhrases,
	}, policy, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init rendered transport: %w", err)
	}

	raw := collyfetcher.New(collyfetcher.Config{
		UserAgent:        cfg.Crawler.UserAgent,
		Timeout:          cfg.Crawler.RequestTimeout,
		RateLimitPhrases: cfg.Crawler.RateLimitPhrases,
	}, policy, logger)

	rotator, err := buildRotator(ctx, cfg, logger)
	if err != nil {
		rendered.Close()
		return nil, nil, err
	}

	window := crawler.NewOutcomeWindow(cfg.Crawler.WindowSize)
	gate := crawler.NewGate(window, rotator, crawler.GateConfig{
		FailureThreshold: cfg.Crawler.FailureThreshold,
		RotationLimit:    cfg.Rotation.Limit,
	}, logger)

	dispatcher := crawler.NewDispatcher(raw, caseStore, gate, crawler.DispatcherConfig{
		BatchSize: cfg.Crawler.BatchSize,
	}, logger)

	orchestrator := crawler.NewOrchestrator(
		rendered,
		dispatcher,
		caseStore,
		caseStore,
		clock,
		gate,
		crawler.OrchestratorConfig{
			ListingTemplate: cfg.Crawler.ListingTemplate,
			Courts:          cfg.Crawler.Courts,
			FinalYear:       cfg.Crawler.FinalYear,
		},
		runID,
		logger,
	)
	return orchestrator, rendered.Close, nil
}

func buildRotator(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawler.Rotator, error) {
	if !cfg.Rotation.Enabled {
		logger.Warn("Identity rotation disabled; a failure threshold breach will abort the crawl")
		return rotation.Disabled{}, nil
	}
	rotator, err := rotation.NewElasticIP(ctx, rotation.Config{
		InstanceID:         cfg.Rotation.InstanceID,
		NetworkInterfaceID: cfg.Rotation.NetworkInterfaceID,
		Region:             cfg.Rotation.Region,
		SettleDelay:        cfg.Rotation.SettleDelay,
		LookupURL:          cfg.Rotation.LookupURL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init rotator: %w", err)
	}
	return rotator, nil
}

// serveMetrics exposes the Prometheus counters on addr for the duration of
// the crawl. Returns the shutdown func.
func serveMetrics(addr string, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info("Serving metrics", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics listener stopped", zap.Error(err))
		}
	}()
	return func() { _ = server.Close() }
}

// logPath keeps relative log files under the output directory so one run's
// artifacts stay together.
func logPath(outputDir, file string) string {
	if file == "" || filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(outputDir, file)
}
