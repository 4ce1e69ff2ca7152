// Package config loads and validates pricewatch configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Image backends.
const (
	ImagesLocal = "local"
	ImagesGCS   = "gcs"
)

// DefaultUserAgent is a desktop Chrome UA; storefronts serve reduced markup to bots.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/113.0.0.0 Safari/537.36"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Storage StorageConfig `mapstructure:"storage"`
	Scrape  ScrapeConfig  `mapstructure:"scrape"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Images  ImagesConfig  `mapstructure:"images"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Events  EventsConfig  `mapstructure:"events"`
	Server  ServerConfig  `mapstructure:"server"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// StorageConfig selects and configures the price database.
type StorageConfig struct {
	Driver   string         `mapstructure:"driver"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// SQLiteConfig points at the embedded database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig controls access to a Postgres server.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ScrapeConfig governs pacing of a run.
type ScrapeConfig struct {
	DelaySeconds int `mapstructure:"delay_seconds"`
}

// FetchConfig configures page retrieval.
type FetchConfig struct {
	UserAgent         string `mapstructure:"user_agent"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	Headless          bool   `mapstructure:"headless"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
	// PromoteMinText is the visible text, in bytes, below which a page is
	// re-fetched headlessly.
	PromoteMinText int `mapstructure:"promote_min_text"`
}

// ImagesConfig sets where product images are written and served from.
type ImagesConfig struct {
	Backend     string `mapstructure:"backend"`
	SavePath    string `mapstructure:"save_path"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	WebBasePath string `mapstructure:"web_base_path"`
}

// NotifyConfig configures webhook rendering and delivery.
type NotifyConfig struct {
	CurrencySymbol string `mapstructure:"currency_symbol"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// EventsConfig holds Pub/Sub settings for the price event feed. An empty
// topic disables publishing.
type EventsConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// TracingConfig enables OpenTelemetry spans and trace propagation.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// Load builds a Config from disk/environment. An empty path means defaults
// plus environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICEWATCH")
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
	v.SetDefault("logging.development", false)
	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.sqlite.path", "prices.db")
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.max_conns", 4)
	v.SetDefault("scrape.delay_seconds", 2)
	v.SetDefault("fetch.user_agent", DefaultUserAgent)
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.headless", false)
	v.SetDefault("fetch.nav_timeout_seconds", 45)
	v.SetDefault("fetch.promote_min_text", 200)
	v.SetDefault("images.backend", ImagesLocal)
	v.SetDefault("images.save_path", "images")
	v.SetDefault("images.gcs_bucket", "")
	v.SetDefault("images.web_base_path", "")
	v.SetDefault("notify.currency_symbol", "£")
	v.SetDefault("notify.timeout_seconds", 10)
	v.SetDefault("events.project_id", "")
	v.SetDefault("events.topic", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver %q is not one of sqlite, postgres, memory", c.Storage.Driver)
	}
	if c.Scrape.DelaySeconds < 0 {
		return fmt.Errorf("scrape.delay_seconds must be >= 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.Headless && c.Fetch.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.nav_timeout_seconds must be > 0 when headless is enabled")
	}
	switch c.Images.Backend {
	case ImagesLocal:
		if c.Images.SavePath == "" {
			return fmt.Errorf("images.save_path is required for the local backend")
		}
	case ImagesGCS:
		if c.Images.GCSBucket == "" {
			return fmt.Errorf("images.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("images.backend %q is not one of local, gcs", c.Images.Backend)
	}
	if c.Notify.TimeoutSeconds <= 0 {
		return fmt.Errorf("notify.timeout_seconds must be > 0")
	}
	if c.Events.Topic != "" && c.Events.ProjectID == "" {
		return fmt.Errorf("events.project_id must be set when events.topic is set")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1")
	}
	return nil
}

// ScrapeDelay is the pause between products.
func (c Config) ScrapeDelay() time.Duration {
	return time.Duration(c.Scrape.DelaySeconds) * time.Second
}

// FetchTimeout bounds a single page fetch.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// NavTimeout bounds a headless navigation.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Fetch.NavTimeoutSeconds) * time.Second
}

// NotifyTimeout bounds a single webhook delivery.
func (c Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notify.TimeoutSeconds) * time.Second
}
