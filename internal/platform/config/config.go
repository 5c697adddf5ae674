// Package config loads service configuration from the environment,
// following the recognized options enumerated in the platform spec.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration.
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Telemetry TelemetryConfig
	Runtime   RuntimeConfig
	Retry     RetryConfig
	Webhook   WebhookConfig
	Polling   PollingConfig
	LLM       LLMConfig
}

// ServiceConfig holds service-specific settings.
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings for the run-log store.
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds settings for the hot-path store (dedupe, DLQ, LLM cache).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// TelemetryConfig holds observability endpoint settings.
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
	MetricsPort int
}

// RuntimeConfig mirrors spec §6 "runtime.*" options.
type RuntimeConfig struct {
	MaxParallelExecutions        int
	MaxParallelNodesPerExecution int
	DefaultNodeTimeoutMs         int
}

// RetryConfig mirrors spec §6 "retry.defaultPolicy" and §4.4 defaults.
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoffMs  int
	MaxBackoffMs      int
	BackoffMultiplier float64
	Jitter            string // full|equal|none
}

// WebhookConfig mirrors spec §6 "webhook.*" options.
type WebhookConfig struct {
	SignatureTimestampToleranceSec int
	DedupeWindow                   int
}

// PollingConfig mirrors spec §6 "polling.*" options.
type PollingConfig struct {
	MinIntervalSec int
}

// LLMConfig mirrors spec §6 "llm.*" options.
type LLMConfig struct {
	CacheDefaultTTLSec int
	BudgetDailyUSD     float64
}

// Load loads configuration from environment variables, applying the
// defaults spelled out in spec §6.
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "automation"),
			User:        getEnv("POSTGRES_USER", "automation"),
			Password:    getEnv("POSTGRES_PASSWORD", "automation"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("ENABLE_PPROF", true),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
			MetricsPort: getEnvInt("METRICS_PORT", 9090),
		},
		Runtime: RuntimeConfig{
			MaxParallelExecutions:        getEnvInt("RUNTIME_MAX_PARALLEL_EXECUTIONS", 100),
			MaxParallelNodesPerExecution: getEnvInt("RUNTIME_MAX_PARALLEL_NODES_PER_EXECUTION", 4),
			DefaultNodeTimeoutMs:         getEnvInt("RUNTIME_DEFAULT_NODE_TIMEOUT_MS", 60000),
		},
		Retry: RetryConfig{
			MaxAttempts:       getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			InitialBackoffMs:  getEnvInt("RETRY_INITIAL_BACKOFF_MS", 500),
			MaxBackoffMs:      getEnvInt("RETRY_MAX_BACKOFF_MS", 30000),
			BackoffMultiplier: getEnvFloat("RETRY_BACKOFF_MULTIPLIER", 2.0),
			Jitter:            getEnv("RETRY_JITTER", "equal"),
		},
		Webhook: WebhookConfig{
			SignatureTimestampToleranceSec: getEnvInt("WEBHOOK_SIGNATURE_TIMESTAMP_TOLERANCE_SEC", 300),
			DedupeWindow:                   getEnvInt("WEBHOOK_DEDUPE_WINDOW", 1000),
		},
		Polling: PollingConfig{
			MinIntervalSec: getEnvInt("POLLING_MIN_INTERVAL_SEC", 30),
		},
		LLM: LLMConfig{
			CacheDefaultTTLSec: getEnvInt("LLM_CACHE_DEFAULT_TTL_SEC", 300),
			BudgetDailyUSD:     getEnvFloat("LLM_BUDGET_DAILY_USD", 10.0),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.maxAttempts must be >= 1")
	}
	switch c.Retry.Jitter {
	case "full", "equal", "none":
	default:
		return fmt.Errorf("invalid retry jitter mode: %s", c.Retry.Jitter)
	}
	if c.Polling.MinIntervalSec < 1 {
		return fmt.Errorf("polling.minIntervalSec must be >= 1")
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Database,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
