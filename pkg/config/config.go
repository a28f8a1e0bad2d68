package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. NOTIFSYNC_API_ADDR
const EnvPrefix = "NOTIFSYNC"

// Store drivers
const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
)

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// StoreConfig selects and locates the backing store.
type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	// Path is the SQLite file for the sqlite driver and the data directory for bolt.
	Path string `mapstructure:"path" yaml:"path"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	// RateLimit is requests per second per client IP; 0 disables limiting
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// EngineConfig tunes the synchronization engine.
type EngineConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval" yaml:"refresh_interval"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	FeedPageSize    int           `mapstructure:"feed_page_size" yaml:"feed_page_size"`
	MaxFeedPageSize int           `mapstructure:"max_feed_page_size" yaml:"max_feed_page_size"`
}

// EventsConfig sizes the in-process event broker.
type EventsConfig struct {
	Buffer           int `mapstructure:"buffer" yaml:"buffer"`
	SubscriberBuffer int `mapstructure:"subscriber_buffer" yaml:"subscriber_buffer"`
}

// MetricsConfig controls the count gauge collector.
type MetricsConfig struct {
	CollectInterval time.Duration `mapstructure:"collect_interval" yaml:"collect_interval"`
}

// HealthConfig tunes the storage health probe.
type HealthConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Retries  int           `mapstructure:"retries" yaml:"retries"`
	// Critical names the components /ready waits for
	Critical []string `mapstructure:"critical" yaml:"critical"`
}

// Config is the top-level notifsync configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Events  EventsConfig  `mapstructure:"events" yaml:"events"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Health  HealthConfig  `mapstructure:"health" yaml:"health"`
}

// defaults maps every key to its default value.
var defaults = map[string]interface{}{
	"log.level":                 "info",
	"log.json":                  false,
	"store.driver":              DriverSQLite,
	"store.path":                "notifsync.sqlite",
	"api.addr":                  ":8080",
	"api.rate_limit":            0,
	"api.rate_burst":            20,
	"engine.refresh_interval":   "60s",
	"engine.request_timeout":    "15s",
	"engine.feed_page_size":     20,
	"engine.max_feed_page_size": 100,
	"events.buffer":             100,
	"events.subscriber_buffer":  50,
	"metrics.collect_interval":  "15s",
	"health.interval":           "30s",
	"health.timeout":            "5s",
	"health.retries":            3,
	"health.critical":           []string{"storage", "engine"},
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the configuration with no file and no environment applied.
func Default() *Config {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	cfg := &Config{}
	// Defaults always decode
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load reads configuration from the YAML file at path, then applies
// NOTIFSYNC_* environment overrides. An empty path or a missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and the store driver.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Driver {
	case DriverSQLite, DriverBolt:
	default:
		problems = append(problems, fmt.Sprintf("store.driver must be %q or %q, got %q", DriverSQLite, DriverBolt, c.Store.Driver))
	}
	if c.Store.Path == "" {
		problems = append(problems, "store.path must not be empty")
	}
	if c.API.RateLimit < 0 {
		problems = append(problems, "api.rate_limit must not be negative")
	}
	if c.API.RateLimit > 0 && c.API.RateBurst <= 0 {
		problems = append(problems, "api.rate_burst must be positive when api.rate_limit is set")
	}
	if c.Engine.RefreshInterval <= 0 {
		problems = append(problems, "engine.refresh_interval must be positive")
	}
	if c.Engine.RequestTimeout <= 0 {
		problems = append(problems, "engine.request_timeout must be positive")
	}
	if c.Engine.FeedPageSize <= 0 {
		problems = append(problems, "engine.feed_page_size must be positive")
	}
	if c.Engine.MaxFeedPageSize < c.Engine.FeedPageSize {
		problems = append(problems, "engine.max_feed_page_size must be at least engine.feed_page_size")
	}
	if c.Events.Buffer <= 0 || c.Events.SubscriberBuffer <= 0 {
		problems = append(problems, "events buffers must be positive")
	}
	if c.Metrics.CollectInterval <= 0 {
		problems = append(problems, "metrics.collect_interval must be positive")
	}

	if c.Health.Interval <= 0 || c.Health.Timeout <= 0 || c.Health.Retries <= 0 {
		problems = append(problems, "health interval, timeout and retries must be positive")
	}
	for _, name := range c.Health.Critical {
		if strings.TrimSpace(name) == "" {
			problems = append(problems, "health.critical must not contain empty names")
			break
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
