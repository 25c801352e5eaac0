// Package config loads runtime configuration for the fares service using
// Viper. Values come from defaults, an optional TOML/YAML file, and
// FARES_-prefixed environment variables, in increasing precedence.
package config

import (
	"os"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// Source kinds understood by the adapter registry.
const (
	KindHTTP    = "http"
	KindBrowser = "browser"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Collect   CollectConfig   `mapstructure:"collect"`
	Normalize NormalizeConfig `mapstructure:"normalize"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Sources   []SourceConfig  `mapstructure:"sources"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CollectConfig bounds source collection.
type CollectConfig struct {
	PerSourceTimeout time.Duration `mapstructure:"per_source_timeout"`
	OverallDeadline  time.Duration `mapstructure:"overall_deadline"`
	GracePeriod      time.Duration `mapstructure:"grace_period"`
	RequireResults   bool          `mapstructure:"require_results"`
}

// NormalizeConfig tunes listing normalization. Zero price bounds disable
// the sanity check.
type NormalizeConfig struct {
	MinPrice     int64  `mapstructure:"min_price"`
	MaxPrice     int64  `mapstructure:"max_price"`
	DefaultCabin string `mapstructure:"default_cabin"`
}

// CacheConfig configures the bundle cache.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig configures the per-client API limiter.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// LogConfig configures slog.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// DatabaseConfig configures the optional run history sink. An empty DSN
// disables it.
type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// SourceConfig describes one fare source.
type SourceConfig struct {
	ID       string `mapstructure:"id"`
	Kind     string `mapstructure:"kind"`
	Priority int    `mapstructure:"priority"` // lower wins when merging duplicates
	Disabled bool   `mapstructure:"disabled"`

	// http
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	MaxPages          int           `mapstructure:"max_pages"`

	Browser BrowserConfig `mapstructure:"browser"`
}

// BrowserConfig configures a chromedp-driven source.
type BrowserConfig struct {
	URLTemplate  string            `mapstructure:"url_template"`
	CardSelector string            `mapstructure:"card_selector"`
	Fields       map[string]string `mapstructure:"fields"`
	Headless     bool              `mapstructure:"headless"`
	UserAgent    string            `mapstructure:"user_agent"`
	LoadTimeout  time.Duration     `mapstructure:"load_timeout"`
	ScrollPause  time.Duration     `mapstructure:"scroll_pause"`
	MaxScrolls   int               `mapstructure:"max_scrolls"`
	StableRounds int               `mapstructure:"stable_rounds"`
}

// Load reads configuration. An empty path uses defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("FARES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	applySourceEnv(cfg.Sources)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applySourceEnv lets FARES_SOURCE_<ID>_URL override a source base URL,
// which keeps container setups free of config files.
func applySourceEnv(sources []SourceConfig) {
	for i := range sources {
		key := "FARES_SOURCE_" + strings.ToUpper(strings.ReplaceAll(sources[i].ID, "-", "_")) + "_URL"
		if v := os.Getenv(key); v != "" {
			sources[i].BaseURL = v
		}
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Collect.PerSourceTimeout < 0 || c.Collect.OverallDeadline < 0 || c.Collect.GracePeriod < 0 {
		return errors.New("collect timeouts must not be negative")
	}
	if c.Normalize.MaxPrice > 0 && c.Normalize.MinPrice > c.Normalize.MaxPrice {
		return errors.Newf("normalize.min_price %d exceeds max_price %d", c.Normalize.MinPrice, c.Normalize.MaxPrice)
	}

	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			return errors.New("source id is required")
		}
		if seen[id] {
			return errors.Newf("duplicate source id %q", id)
		}
		seen[id] = true

		switch s.Kind {
		case KindHTTP:
			if s.BaseURL == "" {
				return errors.Newf("source %q: base_url is required", id)
			}
		case KindBrowser:
			if s.Browser.URLTemplate == "" || s.Browser.CardSelector == "" {
				return errors.Newf("source %q: browser.url_template and browser.card_selector are required", id)
			}
		default:
			return errors.Newf("source %q: unknown kind %q", id, s.Kind)
		}
	}
	return nil
}

// EnabledSources returns the sources that are not disabled, in
// configuration order.
func (c *Config) EnabledSources() []SourceConfig {
	out := make([]SourceConfig, 0, len(c.Sources))
	for _, s := range c.Sources {
		if !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}

// SourcePriority returns enabled source ids ordered by priority, ties
// broken by configuration order.
func (c *Config) SourcePriority() []string {
	enabled := c.EnabledSources()
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Priority < enabled[j].Priority
	})
	ids := make([]string, len(enabled))
	for i, s := range enabled {
		ids[i] = s.ID
	}
	return ids
}
