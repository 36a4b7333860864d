// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Named crawl depth levels and their frontier limits.
const (
	DepthShallow = "shallow"
	DepthAverage = "average"
	DepthDeep    = "deep"
)

// Named per-host request limits.
const (
	RequestLimitGentle     = "gentle"
	RequestLimitAverage    = "average"
	RequestLimitAggressive = "aggressive"
)

var depthLimits = map[string]int{
	DepthShallow: 5,
	DepthAverage: 8,
	DepthDeep:    12,
}

var requestLimits = map[string]int{
	RequestLimitGentle:     10,
	RequestLimitAverage:    20,
	RequestLimitAggressive: 30,
}

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Store   StoreConfig   `mapstructure:"store"`
	Manager ManagerConfig `mapstructure:"manager"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs one crawl run.
type CrawlerConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	Depth          string  `mapstructure:"depth"`
	RequestLimit   string  `mapstructure:"request_limit"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	HostRPS        float64 `mapstructure:"host_rps"`
}

// QueueConfig bounds concurrent crawl execution.
type QueueConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// StoreConfig locates the graph store and selects its codec.
type StoreConfig struct {
	Root       string `mapstructure:"root"`
	Compressor string `mapstructure:"compressor"`
}

// ManagerConfig tunes the graph metadata pipeline.
type ManagerConfig struct {
	Workers             int `mapstructure:"workers"`
	DebounceMs          int `mapstructure:"debounce_ms"`
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk and environment. Env vars use the
// SITEMAPPER_ prefix with dots replaced by underscores.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITEMAPPER")
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
	v.SetDefault("crawler.user_agent", "sitemapper/0.5")
	v.SetDefault("crawler.depth", DepthAverage)
	v.SetDefault("crawler.request_limit", RequestLimitAverage)
	v.SetDefault("crawler.timeout_seconds", 15)
	v.SetDefault("crawler.host_rps", 0)
	v.SetDefault("queue.capacity", 1)
	v.SetDefault("store.root", "graphs")
	v.SetDefault("store.compressor", "gzip")
	v.SetDefault("manager.workers", 4)
	v.SetDefault("manager.debounce_ms", 500)
	v.SetDefault("manager.poll_interval_seconds", 5)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and known enum levels.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if _, ok := depthLimits[c.Crawler.Depth]; !ok {
		return fmt.Errorf("crawler.depth must be one of shallow, average, deep")
	}
	if _, ok := requestLimits[c.Crawler.RequestLimit]; !ok {
		return fmt.Errorf("crawler.request_limit must be one of gentle, average, aggressive")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue.capacity must be > 0")
	}
	if c.Store.Root == "" {
		return fmt.Errorf("store.root must be set")
	}
	if c.Store.Compressor != "gzip" && c.Store.Compressor != "lzma" {
		return fmt.Errorf("store.compressor must be gzip or lzma")
	}
	if c.Manager.Workers <= 0 {
		return fmt.Errorf("manager.workers must be > 0")
	}
	return nil
}

// DepthLimitFor maps a depth level name to its numeric bound. The second
// return is false for unknown names.
func DepthLimitFor(name string) (int, bool) {
	d, ok := depthLimits[name]
	return d, ok
}

// RequestLimitFor maps a request level name to its per-host fetch cap.
func RequestLimitFor(name string) (int, bool) {
	l, ok := requestLimits[name]
	return l, ok
}

// RequestTimeout converts the configured timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// Debounce converts the watcher debounce window into a duration.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.Manager.DebounceMs) * time.Millisecond
}

// PollInterval converts the polling fallback interval into a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Manager.PollIntervalSeconds) * time.Second
}
