// Package config loads and validates job crawler configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// Archive backends.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// Fetcher modes.
const (
	FetcherColly    = "colly"
	FetcherHeadless = "headless"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Sitemap  SitemapConfig  `mapstructure:"sitemap"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"`
	Status   StatusConfig   `mapstructure:"status"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	API      APIConfig      `mapstructure:"api"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// SitemapConfig points at the job sitemap.
type SitemapConfig struct {
	URL              string `mapstructure:"url"`
	SkipMalformedIDs bool   `mapstructure:"skip_malformed_ids"`
}

// HTTPConfig configures outbound fetches.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
}

// FetcherConfig picks the job page fetcher.
type FetcherConfig struct {
	Mode              string `mapstructure:"mode"`
	MaxParallel       int    `mapstructure:"max_parallel"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
}

// StatusConfig governs the status pass.
type StatusConfig struct {
	Mode          string          `mapstructure:"mode"`
	Workers       int             `mapstructure:"workers"`
	TitleSelector string          `mapstructure:"title_selector"`
	RateLimit     RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig paces fetches per host. RPS <= 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// StorageConfig selects the job store backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
	Path    string `mapstructure:"path"`
	Table   string `mapstructure:"table"`
}

// ArchiveConfig selects where raw sitemaps are kept.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	BaseDir string `mapstructure:"base_dir"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for run completion events.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// APIConfig tunes the query surface.
type APIConfig struct {
	RandomJobsCount     int `mapstructure:"random_jobs_count"`
	CrawlTimeoutSeconds int `mapstructure:"crawl_timeout_seconds"`
}

// ScheduleConfig enables periodic crawls when Cron is set.
type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JOBCRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("sitemap.url", "")
	v.SetDefault("sitemap.skip_malformed_ids", false)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.user_agent", "sitemap-job-crawler/0.1")
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("fetcher.mode", FetcherColly)
	v.SetDefault("fetcher.max_parallel", 1)
	v.SetDefault("fetcher.nav_timeout_seconds", 25)
	v.SetDefault("status.mode", "sequential")
	v.SetDefault("status.workers", 4)
	v.SetDefault("status.title_selector", `[itemprop="title"]`)
	v.SetDefault("status.rate_limit.rps", 0)
	v.SetDefault("status.rate_limit.burst", 1)
	v.SetDefault("storage.backend", StorageMemory)
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.path", "jobs.db")
	v.SetDefault("storage.table", "urls")
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.base_dir", "")
	v.SetDefault("archive.prefix", "sitemaps")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("api.random_jobs_count", 3)
	v.SetDefault("api.crawl_timeout_seconds", 600)
	v.SetDefault("schedule.cron", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if err := validateSitemapURL(c.Sitemap.URL); err != nil {
		return err
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	switch c.Fetcher.Mode {
	case FetcherColly:
	case FetcherHeadless:
		if c.Fetcher.MaxParallel <= 0 {
			return fmt.Errorf("fetcher.max_parallel must be > 0 in headless mode")
		}
	default:
		return fmt.Errorf("fetcher.mode %q is not one of colly, headless", c.Fetcher.Mode)
	}
	switch c.Status.Mode {
	case "sequential":
	case "parallel":
		if c.Status.Workers <= 0 {
			return fmt.Errorf("status.workers must be > 0 in parallel mode")
		}
	default:
		return fmt.Errorf("status.mode %q is not one of sequential, parallel", c.Status.Mode)
	}
	if strings.TrimSpace(c.Status.TitleSelector) == "" {
		return fmt.Errorf("status.title_selector is required")
	}
	switch c.Storage.Backend {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres backend")
		}
	case StorageSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, postgres, sqlite", c.Storage.Backend)
	}
	switch c.Archive.Backend {
	case ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir is required for the local backend")
		}
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend %q is not one of none, memory, local, gcs", c.Archive.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	if c.API.RandomJobsCount <= 0 {
		return fmt.Errorf("api.random_jobs_count must be > 0")
	}
	if c.API.CrawlTimeoutSeconds < 0 {
		return fmt.Errorf("api.crawl_timeout_seconds must be >= 0")
	}
	if c.Schedule.Cron != "" {
		if _, err := ParseSchedule(c.Schedule.Cron); err != nil {
			return fmt.Errorf("schedule.cron: %w", err)
		}
	}
	return nil
}

func validateSitemapURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("sitemap.url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("sitemap.url %q must be an absolute http(s) URL", raw)
	}
	return nil
}

// ParseSchedule parses a standard five-field cron spec or a descriptor such
// as "@hourly".
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", spec, err)
	}
	return schedule, nil
}

// HTTPTimeout returns the per-fetch timeout.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// NavTimeout returns the headless navigation timeout.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Fetcher.NavTimeoutSeconds) * time.Second
}

// CrawlTimeout bounds the HTTP routes that start a crawl run.
func (c Config) CrawlTimeout() time.Duration {
	return time.Duration(c.API.CrawlTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful HTTP shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}
