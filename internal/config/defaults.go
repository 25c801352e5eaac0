package config

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultUserAgent is sent by browser sources unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// SetDefaults registers default values for every option.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("collect.per_source_timeout", 8*time.Second)
	v.SetDefault("collect.overall_deadline", 15*time.Second)
	v.SetDefault("collect.grace_period", 250*time.Millisecond)
	v.SetDefault("collect.require_results", false)

	v.SetDefault("normalize.min_price", 0)
	v.SetDefault("normalize.max_price", 0)
	v.SetDefault("normalize.default_cabin", "economy")

	v.SetDefault("cache.ttl", 30*time.Second)

	v.SetDefault("ratelimit.requests", 10)
	v.SetDefault("ratelimit.window", time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 5)

	// Local mock sources started by cmd/provider.
	v.SetDefault("sources", []map[string]any{
		{"id": "makemytrip", "kind": KindHTTP, "priority": 1, "base_url": "http://localhost:9001", "timeout": "5s", "requests_per_second": 4, "max_pages": 5},
		{"id": "goibibo", "kind": KindHTTP, "priority": 2, "base_url": "http://localhost:9002", "timeout": "5s", "requests_per_second": 4, "max_pages": 5},
		{"id": "cleartrip", "kind": KindHTTP, "priority": 3, "base_url": "http://localhost:9003", "timeout": "5s", "requests_per_second": 4, "max_pages": 5},
	})
}
