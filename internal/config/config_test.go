package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alex-user-go/fares/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 8*time.Second, cfg.Collect.PerSourceTimeout)
	assert.Equal(t, 15*time.Second, cfg.Collect.OverallDeadline)
	assert.Equal(t, 250*time.Millisecond, cfg.Collect.GracePeriod)
	assert.Equal(t, "economy", cfg.Normalize.DefaultCabin)
	require.Len(t, cfg.Sources, 3)
	assert.Equal(t, "makemytrip", cfg.Sources[0].ID)
	assert.Equal(t, 5*time.Second, cfg.Sources[0].Timeout)
	assert.InDelta(t, 4.0, cfg.Sources[0].RequestsPerSecond, 0.0001)
	assert.Equal(t, []string{"makemytrip", "goibibo", "cleartrip"}, cfg.SourcePriority())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("FARES_COLLECT_OVERALL_DEADLINE", "42s")
	t.Setenv("FARES_SOURCE_GOIBIBO_URL", "http://goibibo.internal:9000")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 42*time.Second, cfg.Collect.OverallDeadline)
	assert.Equal(t, "http://goibibo.internal:9000", cfg.Sources[1].BaseURL)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fares.toml")
	content := `
[collect]
per_source_timeout = "3s"
overall_deadline = "6s"

[[sources]]
id = "beta"
kind = "http"
priority = 2
base_url = "http://beta"

[[sources]]
id = "alpha"
kind = "http"
priority = 1
base_url = "http://alpha"

[[sources]]
id = "gamma"
kind = "browser"
priority = 1
disabled = true

[sources.browser]
url_template = "https://example.test/{from}-{to}/{date}"
card_selector = "div.card"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Collect.PerSourceTimeout)
	require.Len(t, cfg.Sources, 3)
	assert.Len(t, cfg.EnabledSources(), 2)
	assert.Equal(t, []string{"alpha", "beta"}, cfg.SourcePriority())
	assert.Equal(t, "div.card", cfg.Sources[2].Browser.CardSelector)
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := config.Load(filepath.Join("..", "..", "fares.example.yaml"))
	require.NoError(t, err)

	assert.Equal(t, int64(1000), cfg.Normalize.MinPrice)
	require.Len(t, cfg.Sources, 4)
	assert.Equal(t, []string{"makemytrip", "goibibo", "cleartrip"}, cfg.SourcePriority())
	assert.Equal(t, 800*time.Millisecond, cfg.Sources[3].Browser.ScrollPause)
	assert.Equal(t, ".clusterViewPrice span", cfg.Sources[3].Browser.Fields["price"])
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*config.Config) {},
		},
		{
			name: "duplicate source",
			mutate: func(c *config.Config) {
				c.Sources = append(c.Sources, c.Sources[0])
			},
			wantErr: `duplicate source id "a"`,
		},
		{
			name: "unknown kind",
			mutate: func(c *config.Config) {
				c.Sources[0].Kind = "ftp"
			},
			wantErr: `source "a": unknown kind "ftp"`,
		},
		{
			name: "http without url",
			mutate: func(c *config.Config) {
				c.Sources[0].BaseURL = ""
			},
			wantErr: `source "a": base_url is required`,
		},
		{
			name: "browser without selector",
			mutate: func(c *config.Config) {
				c.Sources[0].Kind = config.KindBrowser
				c.Sources[0].Browser.URLTemplate = "https://x"
			},
			wantErr: `source "a": browser.url_template and browser.card_selector are required`,
		},
		{
			name: "negative deadline",
			mutate: func(c *config.Config) {
				c.Collect.OverallDeadline = -time.Second
			},
			wantErr: "collect timeouts must not be negative",
		},
		{
			name: "inverted price bounds",
			mutate: func(c *config.Config) {
				c.Normalize.MinPrice = 500
				c.Normalize.MaxPrice = 100
			},
			wantErr: "normalize.min_price 500 exceeds max_price 100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Sources: []config.SourceConfig{{ID: "a", Kind: config.KindHTTP, BaseURL: "http://a"}},
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}
