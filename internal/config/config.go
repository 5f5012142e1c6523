package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	RedisURL     string
	AnalyticsURL string
	JWTSecret    string
	ServerPort   string
	AutoMigrate  bool

	CacheTTL             time.Duration
	CacheCleanupInterval time.Duration
	FetchConcurrency     int
	RefreshLimitPerHour  int
	RemoteTimeout        time.Duration
	ShutdownTimeout      time.Duration

	// PipelineIdleTimeout drops a user's widget state after this long
	// without a request. Zero keeps it for the process lifetime.
	PipelineIdleTimeout   time.Duration
	PipelineSweepInterval time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads .env when present, then the environment, and validates the
// result.
func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
		AnalyticsURL: getEnv("ANALYTICS_URL", ""),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		AutoMigrate:  getEnvBool("AUTO_MIGRATE", false),

		CacheTTL:             getEnvDuration("CACHE_TTL", 600*time.Second),
		CacheCleanupInterval: getEnvDuration("CACHE_CLEANUP_INTERVAL", 60*time.Second),
		FetchConcurrency:     getEnvInt("FETCH_CONCURRENCY", 8),
		RefreshLimitPerHour:  getEnvInt("REFRESH_LIMIT_PER_HOUR", 30),
		RemoteTimeout:        getEnvDuration("REMOTE_TIMEOUT", 30*time.Second),
		ShutdownTimeout:      getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),

		PipelineIdleTimeout:   getEnvDuration("PIPELINE_IDLE_TIMEOUT", 30*time.Minute),
		PipelineSweepInterval: getEnvDuration("PIPELINE_SWEEP_INTERVAL", time.Minute),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.AnalyticsURL == "" && c.DatabaseURL == "" {
		return errors.New("one of ANALYTICS_URL or DATABASE_URL is required")
	}

	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	if c.ServerPort == "" {
		return errors.New("SERVER_PORT is required")
	}

	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", c.CacheTTL)
	}

	if c.CacheCleanupInterval < 0 {
		return fmt.Errorf("CACHE_CLEANUP_INTERVAL must not be negative, got %s", c.CacheCleanupInterval)
	}

	if c.PipelineIdleTimeout < 0 || c.PipelineSweepInterval < 0 {
		return fmt.Errorf("PIPELINE_IDLE_TIMEOUT and PIPELINE_SWEEP_INTERVAL must not be negative")
	}

	if c.FetchConcurrency < 1 {
		return fmt.Errorf("FETCH_CONCURRENCY must be at least 1, got %d", c.FetchConcurrency)
	}

	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}

	return nil
}

// UseRemote reports whether queries and widgets go to the analytics service
// rather than directly to PostgreSQL.
func (c *Config) UseRemote() bool {
	return c.AnalyticsURL != ""
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}
