// Package config initializes the application's configuration. It uses Viper
// to read settings from a config file and environment variables and loads
// them into a validated, typed struct.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mpelletier/caselaw-crawler/internal/crawler"
)

// Init sets Viper defaults, search paths, and environment wiring. Called
// once at startup, before any command runs.
func Init() {
	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.caselaw-crawler")

	viper.SetDefault("crawler.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	viper.SetDefault("crawler.batch_size", 5)
	viper.SetDefault("crawler.window_size", 10)
	viper.SetDefault("crawler.failure_threshold", 5)
	viper.SetDefault("crawler.max_retries", 3)
	viper.SetDefault("crawler.request_delay_min", "1s")
	viper.SetDefault("crawler.request_delay_max", "10s")
	viper.SetDefault("crawler.request_timeout", "30s")
	viper.SetDefault("crawler.navigation_timeout", "45s")
	viper.SetDefault("crawler.output_dir", "data")
	viper.SetDefault("crawler.listing_template", "https://www.canlii.org/en/on/{court}/nav/date/{year}/")
	viper.SetDefault("crawler.listing_selector", "#filterableList")
	viper.SetDefault("crawler.load_more_selector", "a.loadMoreResults")
	viper.SetDefault("crawler.final_year", 0)
	viper.SetDefault("crawler.rate_limit_phrases", []string{
		"rate limit exceeded",
		"too many requests",
		"access denied",
	})

	viper.SetDefault("rotation.enabled", false)
	viper.SetDefault("rotation.region", "us-east-2")
	viper.SetDefault("rotation.limit", 3)
	viper.SetDefault("rotation.settle_delay", "5s")
	viper.SetDefault("rotation.lookup_url", "https://api.ipify.org")

	viper.SetDefault("metrics.addr", "")

	viper.SetDefault("logging.development", false)
	viper.SetDefault("logging.file", "logs/crawler.log")
	viper.SetDefault("logging.max_size_mb", 50)
	viper.SetDefault("logging.max_backups", 5)

	viper.SetEnvPrefix("CASELAW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Missing config file is fine; defaults plus env vars carry the run.
	_ = viper.ReadInConfig()
}

// CrawlerConfig captures every knob that influences a crawl run.
type CrawlerConfig struct {
	UserAgent         string
	BatchSize         int
	WindowSize        int
	FailureThreshold  int
	MaxRetries        int
	RequestDelayMin   time.Duration
	RequestDelayMax   time.Duration
	RequestTimeout    time.Duration
	NavigationTimeout time.Duration
	OutputDir         string
	ListingTemplate   string
	ListingSelector   string
	LoadMoreSelector  string
	FinalYear         int
	RateLimitPhrases  []string
	Courts            []crawler.CourtRange
}

// RotationConfig identifies the EC2 resources used to rotate the egress
// address. Disabled runs abort on the first threshold breach.
type RotationConfig struct {
	Enabled            bool
	InstanceID         string
	NetworkInterfaceID string
	Region             string
	Limit              int
	SettleDelay        time.Duration
	LookupURL          string
}

// MetricsConfig controls the optional Prometheus listener. An empty address
// disables it.
type MetricsConfig struct {
	Addr string
}

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	Development bool
	File        string
	MaxSizeMB   int
	MaxBackups  int
}

// Config is the root of the typed configuration.
type Config struct {
	Crawler  CrawlerConfig
	Rotation RotationConfig
	Metrics  MetricsConfig
	Logging  LoggingConfig
}

// Load reads the typed configuration out of Viper.
func Load(v *viper.Viper) (Config, error) {
	var courts []crawler.CourtRange
	if err := v.UnmarshalKey("crawler.courts", &courts); err != nil {
		return Config{}, fmt.Errorf("parse crawler.courts: %w", err)
	}

	cfg := Config{
		Crawler: CrawlerConfig{
			UserAgent:         v.GetString("crawler.user_agent"),
			BatchSize:         v.GetInt("crawler.batch_size"),
			WindowSize:        v.GetInt("crawler.window_size"),
			FailureThreshold:  v.GetInt("crawler.failure_threshold"),
			MaxRetries:        v.GetInt("crawler.max_retries"),
			RequestDelayMin:   v.GetDuration("crawler.request_delay_min"),
			RequestDelayMax:   v.GetDuration("crawler.request_delay_max"),
			RequestTimeout:    v.GetDuration("crawler.request_timeout"),
			NavigationTimeout: v.GetDuration("crawler.navigation_timeout"),
			OutputDir:         v.GetString("crawler.output_dir"),
			ListingTemplate:   v.GetString("crawler.listing_template"),
			ListingSelector:   v.GetString("crawler.listing_selector"),
			LoadMoreSelector:  v.GetString("crawler.load_more_selector"),
			FinalYear:         v.GetInt("crawler.final_year"),
			RateLimitPhrases:  v.GetStringSlice("crawler.rate_limit_phrases"),
			Courts:            courts,
		},
		Rotation: RotationConfig{
			Enabled:            v.GetBool("rotation.enabled"),
			InstanceID:         v.GetString("rotation.instance_id"),
			NetworkInterfaceID: v.GetString("rotation.network_interface_id"),
			Region:             v.GetString("rotation.region"),
			Limit:              v.GetInt("rotation.limit"),
			SettleDelay:        v.GetDuration("rotation.settle_delay"),
			LookupURL:          v.GetString("rotation.lookup_url"),
		},
		Metrics: MetricsConfig{
			Addr: v.GetString("metrics.addr"),
		},
		Logging: LoggingConfig{
			Development: v.GetBool("logging.development"),
			File:        v.GetString("logging.file"),
			MaxSizeMB:   v.GetInt("logging.max_size_mb"),
			MaxBackups:  v.GetInt("logging.max_backups"),
		},
	}
	return cfg, cfg.Validate()
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.Crawler.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if c.Crawler.BatchSize <= 0 {
		return fmt.Errorf("crawler.batch_size must be > 0")
	}
	if c.Crawler.WindowSize <= 0 {
		return fmt.Errorf("crawler.window_size must be > 0")
	}
	if c.Crawler.FailureThreshold <= 0 {
		return fmt.Errorf("crawler.failure_threshold must be > 0")
	}
	if c.Crawler.FailureThreshold > c.Crawler.WindowSize {
		return fmt.Errorf("crawler.failure_threshold must not exceed crawler.window_size")
	}
	if c.Crawler.MaxRetries <= 0 {
		return fmt.Errorf("crawler.max_retries must be > 0")
	}
	if c.Crawler.RequestDelayMin <= 0 || c.Crawler.RequestDelayMax < c.Crawler.RequestDelayMin {
		return fmt.Errorf("crawler.request_delay_min/max must describe a positive range")
	}
	if c.Crawler.OutputDir == "" {
		return fmt.Errorf("crawler.output_dir must be set")
	}
	if c.Crawler.ListingTemplate == "" {
		return fmt.Errorf("crawler.listing_template must be set")
	}
	if len(c.Crawler.Courts) == 0 {
		return fmt.Errorf("crawler.courts must list at least one court")
	}
	for _, court := range c.Crawler.Courts {
		if court.Code == "" || court.FirstYear <= 0 {
			return fmt.Errorf("crawler.courts entries need a code and a first_year")
		}
	}
	if c.Rotation.Enabled {
		if c.Rotation.InstanceID == "" || c.Rotation.NetworkInterfaceID == "" {
			return fmt.Errorf("rotation.instance_id and rotation.network_interface_id must be set when rotation is enabled")
		}
		if c.Rotation.Region == "" {
			return fmt.Errorf("rotation.region must be set when rotation is enabled")
		}
	}
	if c.Rotation.Limit < 0 {
		return fmt.Errorf("rotation.limit must be >= 0 (0 means unbounded)")
	}
	return nil
}
