// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// RedisConfig provides Redis connection settings.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// AnalyticsConfig provides settings for the analytics query endpoint client.
type AnalyticsConfig interface {
	GetAnalyticsBaseURL() string
	GetAnalyticsAPIKey() string
}

// StockFeedConfig provides settings for the stock catalog export fetcher.
type StockFeedConfig interface {
	GetStockFeedURL() string
}

// SchedulerConfig provides settings for the asynq scheduler and worker.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetFullRefreshInterval() time.Duration
}

// ChangefeedConfig provides settings for the assignment change feed.
type ChangefeedConfig interface {
	RedisConfig
	GetChangeFeedChannel() string
}

// CacheConfig provides settings for the session cache.
type CacheConfig interface {
	GetCacheSessionKey() string
}

// Config holds all application configuration.
type Config struct {
	Env                 string
	HTTPAddr            string
	DatabaseURL         string
	RedisURL            string
	RedisTLSInsecure    bool
	ChangeFeedChannel   string
	CacheSessionKey     string
	AnalyticsBaseURL    string
	AnalyticsAPIKey     string
	StockFeedURL        string
	CORSAllowAll        bool
	CORSOrigins         []string
	CORSAllowCreds      bool
	AsynqQueueName      string
	AsynqConcurrency    int
	FullRefreshInterval time.Duration
	TuningPath          string
	Tuning              Tuning
}

// Load reads configuration from the environment (and .env if present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisTLSInsecure:    strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		ChangeFeedChannel:   getEnv("CHANGE_FEED_CHANNEL", "offers.assignments.changes"),
		CacheSessionKey:     getEnv("CACHE_SESSION_KEY", "board"),
		AnalyticsBaseURL:    getEnv("ANALYTICS_BASE_URL", ""),
		AnalyticsAPIKey:     getEnv("ANALYTICS_API_KEY", ""),
		StockFeedURL:        getEnv("STOCK_FEED_URL", ""),
		CORSAllowAll:        corsAllowAll,
		CORSOrigins:         corsOrigins,
		CORSAllowCreds:      strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AsynqQueueName:      getEnv("ASYNQ_QUEUE", "metrics"),
		AsynqConcurrency:    mustInt(getEnv("ASYNQ_CONCURRENCY", "4")),
		FullRefreshInterval: mustDuration(getEnv("FULL_REFRESH_INTERVAL", "15m")),
		TuningPath:          getEnv("PIPELINE_TUNING_PATH", ""),
	}

	tuning, err := LoadTuning(cfg.TuningPath)
	if err != nil {
		return nil, fmt.Errorf("load pipeline tuning: %w", err)
	}
	cfg.Tuning = tuning

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.AnalyticsBaseURL == "" {
		return nil, fmt.Errorf("ANALYTICS_BASE_URL is required")
	}
	if cfg.StockFeedURL == "" {
		return nil, fmt.Errorf("STOCK_FEED_URL is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func (c *Config) GetDatabaseURL() string                 { return c.DatabaseURL }
func (c *Config) GetRedisURL() string                    { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool              { return c.RedisTLSInsecure }
func (c *Config) GetHTTPAddr() string                    { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool                  { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string               { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool                { return c.CORSAllowCreds }
func (c *Config) GetAnalyticsBaseURL() string            { return c.AnalyticsBaseURL }
func (c *Config) GetAnalyticsAPIKey() string             { return c.AnalyticsAPIKey }
func (c *Config) GetStockFeedURL() string                { return c.StockFeedURL }
func (c *Config) GetAsynqQueueName() string              { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int               { return c.AsynqConcurrency }
func (c *Config) GetFullRefreshInterval() time.Duration  { return c.FullRefreshInterval }
func (c *Config) GetChangeFeedChannel() string           { return c.ChangeFeedChannel }
func (c *Config) GetCacheSessionKey() string             { return c.CacheSessionKey }

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
