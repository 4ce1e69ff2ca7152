package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DriverSQLite, cfg.Storage.Driver)
	require.Equal(t, "prices.db", cfg.Storage.SQLite.Path)
	require.Equal(t, 2*time.Second, cfg.ScrapeDelay())
	require.Equal(t, 15*time.Second, cfg.FetchTimeout())
	require.Equal(t, 200, cfg.Fetch.PromoteMinText)
	require.Equal(t, DefaultUserAgent, cfg.Fetch.UserAgent)
	require.Equal(t, "£", cfg.Notify.CurrencySymbol)
	require.Equal(t, ImagesLocal, cfg.Images.Backend)
	require.Empty(t, cfg.Events.Topic)
	require.Equal(t, 8080, cfg.Server.Port)
	require.False(t, cfg.Tracing.Enabled)
	require.InDelta(t, 1.0, cfg.Tracing.SampleRatio, 0.0001)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
logging:
  development: true
storage:
  driver: postgres
  postgres:
    dsn: postgres://prices@localhost/prices
    max_conns: 8
scrape:
  delay_seconds: 5
fetch:
  user_agent: test-agent
  timeout_seconds: 30
  headless: true
  nav_timeout_seconds: 60
  promote_min_text: 500
images:
  backend: gcs
  gcs_bucket: product-images
  web_base_path: https://cdn.example/images
notify:
  currency_symbol: "$"
  timeout_seconds: 3
events:
  project_id: my-project
  topic: price-events
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.Logging.Development)
	require.Equal(t, DriverPostgres, cfg.Storage.Driver)
	require.Equal(t, int32(8), cfg.Storage.Postgres.MaxConns)
	require.Equal(t, 5*time.Second, cfg.ScrapeDelay())
	require.Equal(t, "test-agent", cfg.Fetch.UserAgent)
	require.Equal(t, time.Minute, cfg.NavTimeout())
	require.Equal(t, 500, cfg.Fetch.PromoteMinText)
	require.Equal(t, "product-images", cfg.Images.GCSBucket)
	require.Equal(t, "https://cdn.example/images", cfg.Images.WebBasePath)
	require.Equal(t, "$", cfg.Notify.CurrencySymbol)
	require.Equal(t, 3*time.Second, cfg.NotifyTimeout())
	require.Equal(t, "price-events", cfg.Events.Topic)
	require.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PRICEWATCH_STORAGE_DRIVER", "memory")
	t.Setenv("PRICEWATCH_SCRAPE_DELAY_SECONDS", "0")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DriverMemory, cfg.Storage.Driver)
	require.Zero(t, cfg.ScrapeDelay())
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Storage: StorageConfig{Driver: DriverMemory},
		Fetch:   FetchConfig{TimeoutSeconds: 10},
		Images:  ImagesConfig{Backend: ImagesLocal, SavePath: "images"},
		Notify:  NotifyConfig{TimeoutSeconds: 5},
		Server:  ServerConfig{Port: 8080},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }, "storage.driver"},
		{"sqlite without path", func(c *Config) { c.Storage.Driver = DriverSQLite }, "storage.sqlite.path"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }, "storage.postgres.dsn"},
		{"negative delay", func(c *Config) { c.Scrape.DelaySeconds = -1 }, "scrape.delay_seconds"},
		{"zero fetch timeout", func(c *Config) { c.Fetch.TimeoutSeconds = 0 }, "fetch.timeout_seconds"},
		{"headless without nav timeout", func(c *Config) { c.Fetch.Headless = true }, "fetch.nav_timeout_seconds"},
		{"unknown image backend", func(c *Config) { c.Images.Backend = "s3" }, "images.backend"},
		{"gcs without bucket", func(c *Config) { c.Images.Backend = ImagesGCS }, "images.gcs_bucket"},
		{"local without path", func(c *Config) { c.Images.SavePath = "" }, "images.save_path"},
		{"zero notify timeout", func(c *Config) { c.Notify.TimeoutSeconds = 0 }, "notify.timeout_seconds"},
		{"topic without project", func(c *Config) { c.Events.Topic = "prices" }, "events.project_id"},
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"sample ratio above one", func(c *Config) { c.Tracing.SampleRatio = 1.5 }, "tracing.sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
