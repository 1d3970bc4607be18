// Package config loads newsfeed settings from an optional YAML file, a .env
// file and NEWSFEED_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/newsfeed-client/pkg/cache"
	"github.com/Sternrassler/newsfeed-client/pkg/client"
	"github.com/Sternrassler/newsfeed-client/pkg/logging"
	"github.com/Sternrassler/newsfeed-client/pkg/pagination"
	"github.com/Sternrassler/newsfeed-client/pkg/ratelimit"
	"github.com/Sternrassler/newsfeed-client/pkg/transport"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// NEWSFEED_API_BASE_URL or NEWSFEED_RETRY_MAX_RETRIES.
const EnvPrefix = "NEWSFEED"

// Config is the complete application configuration.
type Config struct {
	API    APIConfig    `mapstructure:"api"`
	Retry  RetryConfig  `mapstructure:"retry"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Warm   WarmConfig   `mapstructure:"warm"`
	Log    LogConfig    `mapstructure:"log"`
	Server ServerConfig `mapstructure:"server"`
}

type APIConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	PageSize          int           `mapstructure:"page_size"`
	TotalItems        int           `mapstructure:"total_items"`
	Timeout           time.Duration `mapstructure:"timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	HonorRetryAfter   bool          `mapstructure:"honor_retry_after"`
	MaxCooldown       time.Duration `mapstructure:"max_cooldown"`
}

type RetryConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxJitter      time.Duration `mapstructure:"max_jitter"`
}

// CacheConfig selects the page cache. An empty RedisAddr keeps pages in
// process memory only.
type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Namespace     string        `mapstructure:"namespace"`
	Session       string        `mapstructure:"session"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type WarmConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// Load reads configuration. An empty path looks for newsfeed.yaml in the
// working directory and carries on without it; an explicit path must exist.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("newsfeed")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults mirrors the package defaults so every key is known to viper
// and can be overridden from the environment.
func setDefaults(v *viper.Viper) {
	tr := transport.DefaultConfig()
	v.SetDefault("api.base_url", tr.BaseURL)
	v.SetDefault("api.page_size", tr.PageSize)
	v.SetDefault("api.total_items", tr.TotalItems)
	v.SetDefault("api.timeout", tr.Timeout)
	v.SetDefault("api.user_agent", tr.UserAgent)
	v.SetDefault("api.requests_per_second", tr.RateLimit.RequestsPerSecond)
	v.SetDefault("api.burst", tr.RateLimit.Burst)
	v.SetDefault("api.honor_retry_after", tr.RateLimit.HonorRetryAfter)
	v.SetDefault("api.max_cooldown", tr.RateLimit.MaxCooldown)

	cl := client.DefaultConfig(nil)
	v.SetDefault("retry.max_retries", cl.MaxRetries)
	v.SetDefault("retry.initial_backoff", cl.InitialBackoff)
	v.SetDefault("retry.max_jitter", cl.MaxJitter)

	rc := cache.DefaultRedisConfig()
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.namespace", rc.Namespace)
	v.SetDefault("cache.session", "")
	v.SetDefault("cache.ttl", rc.TTL)

	wc := pagination.DefaultConfig()
	v.SetDefault("warm.concurrency", wc.MaxConcurrency)
	v.SetDefault("warm.timeout", wc.Timeout)

	v.SetDefault("log.level", string(logging.LevelInfo))
	v.SetDefault("log.pretty", false)

	v.SetDefault("server.port", 8080)
}

// Validate checks values the packages would otherwise reject later.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.PageSize < 1 {
		return fmt.Errorf("api.page_size must be >= 1 (got %d)", c.API.PageSize)
	}
	if c.API.TotalItems < 0 {
		return fmt.Errorf("api.total_items must be >= 0 (got %d)", c.API.TotalItems)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0 (got %d)", c.Retry.MaxRetries)
	}
	if c.Retry.InitialBackoff < 0 || c.Retry.MaxJitter < 0 {
		return fmt.Errorf("retry durations must be >= 0")
	}
	if c.Warm.Concurrency < 1 {
		return fmt.Errorf("warm.concurrency must be >= 1 (got %d)", c.Warm.Concurrency)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535 (got %d)", c.Server.Port)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Transport returns the transport configuration.
func (c *Config) Transport() transport.Config {
	cfg := transport.DefaultConfig()
	cfg.BaseURL = c.API.BaseURL
	cfg.PageSize = c.API.PageSize
	cfg.TotalItems = c.API.TotalItems
	cfg.Timeout = c.API.Timeout
	cfg.UserAgent = c.API.UserAgent
	cfg.RateLimit = ratelimit.Config{
		RequestsPerSecond: c.API.RequestsPerSecond,
		Burst:             c.API.Burst,
		HonorRetryAfter:   c.API.HonorRetryAfter,
		MaxCooldown:       c.API.MaxCooldown,
	}
	return cfg
}

// Client returns the orchestrator configuration around fetcher and store.
func (c *Config) Client(fetcher client.Fetcher, store cache.Store) client.Config {
	cfg := client.DefaultConfig(fetcher)
	cfg.Cache = store
	cfg.MaxRetries = c.Retry.MaxRetries
	cfg.InitialBackoff = c.Retry.InitialBackoff
	cfg.MaxJitter = c.Retry.MaxJitter
	return cfg
}

// Redis returns the Redis store configuration.
func (c *Config) Redis() cache.RedisConfig {
	cfg := cache.DefaultRedisConfig()
	cfg.Namespace = c.Cache.Namespace
	if c.Cache.Session != "" {
		cfg.Session = c.Cache.Session
	}
	cfg.TTL = c.Cache.TTL
	return cfg
}

// Batch returns the warm-up configuration.
func (c *Config) Batch() pagination.Config {
	return pagination.Config{
		MaxConcurrency: c.Warm.Concurrency,
		Timeout:        c.Warm.Timeout,
	}
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level, _ = logging.ParseLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}
