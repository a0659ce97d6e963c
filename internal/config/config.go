// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all crawler configuration knobs loaded via Viper.
type Config struct {
	Site    SiteConfig    `mapstructure:"site"`
	Store   StoreConfig   `mapstructure:"store"`
	Blobs   BlobsConfig   `mapstructure:"blobs"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Extract ExtractConfig `mapstructure:"extract"`
	Hash    HashConfig    `mapstructure:"hash"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SiteConfig identifies the crawled site.
type SiteConfig struct {
	ID      string `mapstructure:"id"`
	BaseURL string `mapstructure:"base_url"`
	// RootURL defaults to BaseURL.
	RootURL    string `mapstructure:"root_url"`
	LinkPrefix string `mapstructure:"link_prefix"`
}

// StoreConfig selects the frontier store.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	// Path is the sqlite file; it defaults to crawl_<site>.db.
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	Table    string `mapstructure:"table"`
}

// BlobsConfig selects where fetched pages are written.
type BlobsConfig struct {
	Provider  string `mapstructure:"provider"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
	// Level is the bzip2 compression level; 0 means best compression.
	Level int `mapstructure:"level"`
}

// HTTPConfig configures the page fetcher.
type HTTPConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	UserAgent         string  `mapstructure:"user_agent"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	RespectRobots     bool    `mapstructure:"respect_robots"`
}

// RetryConfig bounds the fetch pass loop.
type RetryConfig struct {
	MaxPasses         int           `mapstructure:"max_passes"`
	BackoffInitial    time.Duration `mapstructure:"backoff_initial"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	Jitter            bool          `mapstructure:"jitter"`
	ClassifyPermanent bool          `mapstructure:"classify_permanent"`
}

// ExtractConfig tunes the link extraction stage.
type ExtractConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

// HashConfig picks the content digest.
type HashConfig struct {
	Algorithm string `mapstructure:"algorithm"`
}

// PubSubConfig holds metadata for page-fetched notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Blob providers.
const (
	BlobsLocal  = "local"
	BlobsGCS    = "gcs"
	BlobsMemory = "memory"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.id", "worldjournal")
	v.SetDefault("site.base_url", "http://worldjournal.com")
	v.SetDefault("site.root_url", "")
	v.SetDefault("site.link_prefix", "/view")
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.path", "")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.table", "urls")
	v.SetDefault("blobs.provider", BlobsLocal)
	v.SetDefault("blobs.dir", "CRAWLED_PAGES")
	v.SetDefault("blobs.gcs_bucket", "")
	v.SetDefault("blobs.prefix", "")
	v.SetDefault("blobs.level", 0)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.user_agent", "corpus-crawler/0.1")
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("retry.max_passes", 10)
	v.SetDefault("retry.backoff_initial", "1s")
	v.SetDefault("retry.backoff_max", "30s")
	v.SetDefault("retry.jitter", true)
	v.SetDefault("retry.classify_permanent", true)
	v.SetDefault("extract.max_attempts", 3)
	v.SetDefault("hash.algorithm", "md5")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.development", false)
}

func (c *Config) applyDerived() {
	if c.Site.RootURL == "" {
		c.Site.RootURL = c.Site.BaseURL
	}
	if c.Store.Path == "" && c.Site.ID != "" {
		c.Store.Path = fmt.Sprintf("crawl_%s.db", c.Site.ID)
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Site.ID == "" {
		return fmt.Errorf("site.id must be set")
	}
	if !strings.HasPrefix(c.Site.BaseURL, "http://") && !strings.HasPrefix(c.Site.BaseURL, "https://") {
		return fmt.Errorf("site.base_url must be an http(s) url")
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path must be set for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}
	switch c.Blobs.Provider {
	case BlobsLocal:
		if c.Blobs.Dir == "" {
			return fmt.Errorf("blobs.dir must be set for the local provider")
		}
	case BlobsGCS:
		if c.Blobs.GCSBucket == "" {
			return fmt.Errorf("blobs.gcs_bucket must be set for the gcs provider")
		}
	case BlobsMemory:
	default:
		return fmt.Errorf("blobs.provider %q is not supported", c.Blobs.Provider)
	}
	if c.Blobs.Level < 0 || c.Blobs.Level > 9 {
		return fmt.Errorf("blobs.level must be between 0 and 9")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	if c.Retry.MaxPasses < 0 {
		return fmt.Errorf("retry.max_passes must be >= 0")
	}
	if c.Retry.BackoffInitial < 0 || c.Retry.BackoffMax < 0 {
		return fmt.Errorf("retry backoff durations must be >= 0")
	}
	if c.Extract.MaxAttempts <= 0 {
		return fmt.Errorf("extract.max_attempts must be > 0")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	return nil
}

// FetchTimeout converts the HTTP timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
