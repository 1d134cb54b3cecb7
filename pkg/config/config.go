package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/auth-apps/rbacd/pkg/observability"
	"github.com/auth-apps/rbacd/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration (Postgres + Redis)
	Storage storage.Config

	// Session configuration
	Session SessionConfig

	// Cache configuration
	Cache CacheConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for probes)
	HealthPort string
}

// SessionConfig holds session token lifetimes and key namespacing
type SessionConfig struct {
	// Namespace prefixes every Redis key; it isolates deployments
	// sharing one Redis instance.
	Namespace string

	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// CacheConfig holds RBAC cache settings
type CacheConfig struct {
	// RefreshInterval drives the periodic background refresh of role
	// snapshots. Zero disables the background job; mutations still
	// refresh synchronously.
	RefreshInterval time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Session:       loadSessionConfig(),
		Cache:         loadCacheConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("RBACD_HOST", "0.0.0.0"),
		Port:            getEnv("RBACD_PORT", "8080"),
		ReadTimeout:     getEnvDuration("RBACD_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("RBACD_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("RBACD_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("RBACD_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("RBACD_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads Postgres and Redis configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if pgURL := getEnv("RBACD_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("RBACD_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("RBACD_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("RBACD_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	if redisURL := getEnv("RBACD_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("RBACD_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("RBACD_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("RBACD_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("RBACD_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	return cfg
}

// loadSessionConfig loads session configuration from environment
func loadSessionConfig() SessionConfig {
	return SessionConfig{
		Namespace:  getEnv("RBACD_NAMESPACE", "rbacd"),
		AccessTTL:  getEnvDuration("RBACD_SESSION_ACCESS_TTL", 48*time.Hour),
		RefreshTTL: getEnvDuration("RBACD_SESSION_REFRESH_TTL", 168*time.Hour),
	}
}

// loadCacheConfig loads RBAC cache configuration from environment
func loadCacheConfig() CacheConfig {
	return CacheConfig{
		RefreshInterval: getEnvDuration("RBACD_CACHE_REFRESH_INTERVAL", 0),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("RBACD_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("RBACD_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}

	if c.Session.Namespace == "" {
		return fmt.Errorf("session namespace is required")
	}
	if c.Session.AccessTTL <= 0 || c.Session.RefreshTTL <= 0 {
		return fmt.Errorf("session TTLs must be positive")
	}
	if c.Session.AccessTTL >= c.Session.RefreshTTL {
		return fmt.Errorf("access TTL must be shorter than refresh TTL")
	}

	if c.Cache.RefreshInterval < 0 {
		return fmt.Errorf("cache refresh interval cannot be negative")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
