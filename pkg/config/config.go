package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends for the alert journal
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Config holds application configuration
type Config struct {
	// EIA upstream
	EIAAPIKey         string
	EIABaseURL        string
	LookbackDays      int
	RequestsPerSecond float64

	// Optional Prometheus upstream for datasets with source: prometheus
	PrometheusURL string

	// Scheduling
	SchedulerTick  time.Duration
	RefreshTimeout time.Duration

	// HTTP API
	ListenAddr string

	// Static lookup tables (empty = embedded defaults)
	StaticConfigPath string

	// Alert journal
	StorageBackend string
	DatabaseURL    string
	RedisAddr      string

	Verbose bool
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	return &Config{
		EIAAPIKey:         getEnv("EIA_API_KEY", ""),
		EIABaseURL:        getEnv("EIA_BASE_URL", "https://api.eia.gov/v2/"),
		LookbackDays:      getEnvInt("EIA_LOOKBACK_DAYS", 2200), // five reference years plus the current one
		RequestsPerSecond: getEnvFloat("EIA_REQUESTS_PER_SECOND", 5),
		PrometheusURL:     getEnv("PROMETHEUS_URL", ""),
		SchedulerTick:     getEnvDuration("SCHEDULER_TICK", 60*time.Second),
		RefreshTimeout:    getEnvDuration("REFRESH_TIMEOUT", 60*time.Second),
		ListenAddr:        getEnv("LISTEN_ADDR", ":8080"),
		StaticConfigPath:  getEnv("STATIC_CONFIG_PATH", ""),
		StorageBackend:    strings.ToLower(getEnv("STORAGE_BACKEND", StorageMemory)),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		Verbose:           getEnvBool("VERBOSE", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// EIAConfigured reports whether the EIA credential is present
func (c *Config) EIAConfigured() bool {
	return strings.TrimSpace(c.EIAAPIKey) != ""
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.LookbackDays < 1 {
		return fmt.Errorf("lookback must be at least 1 day")
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be > 0")
	}
	if c.SchedulerTick < time.Second {
		return fmt.Errorf("scheduler tick must be at least 1s")
	}
	if c.RefreshTimeout <= 0 {
		return fmt.Errorf("refresh timeout must be > 0")
	}
	switch c.StorageBackend {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when storage backend is postgres")
		}
	case StorageRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR must be set when storage backend is redis")
		}
	default:
		return fmt.Errorf("unknown storage backend: %s", c.StorageBackend)
	}
	return nil
}
