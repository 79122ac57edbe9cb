package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Trigger modes of the refresh loop.
const (
	TriggerPolling = "polling"
	TriggerEvents  = "events"
)

// DatabaseConfig Postgres connection settings
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN lib/pq connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// Config badgewatch service configuration
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig

	// synthetic dataset
	Dataset struct {
		Seed         string
		PersonCount  int
		Anchor       time.Time
		LookbackDays int
	}

	Aggregator struct {
		// polling: rebuild every month on a fixed interval
		// events: rebuild on refresh requests from the Redis stream
		TriggerMode string

		Polling struct {
			Interval int // seconds
		}

		RefreshStream string
		ConsumerGroup string
		ConsumerName  string
		BatchSize     int
	}

	Cache struct {
		TTL int // seconds
	}

	HTTP struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
		File   string // optional rotated file, empty = stdout only
	}
}

// DefaultAnchor reference time of the synthetic dataset
const DefaultAnchor = "2024-02-15T12:00:00Z"

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.Database.Enabled = getEnvBool("DB_ENABLED", false)
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432, &errs)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "badgewatch")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10, &errs)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5, &errs)

	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", false)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0, &errs)

	cfg.Dataset.Seed = getEnv("BADGEWATCH_SEED", "")
	cfg.Dataset.PersonCount = getEnvInt("BADGEWATCH_PERSON_COUNT", 40, &errs)
	cfg.Dataset.LookbackDays = getEnvInt("BADGEWATCH_LOOKBACK_DAYS", 30, &errs)
	anchor, err := time.Parse(time.RFC3339, getEnv("BADGEWATCH_ANCHOR", DefaultAnchor))
	if err != nil {
		errs = append(errs, fmt.Errorf("BADGEWATCH_ANCHOR: %w", err))
	}
	cfg.Dataset.Anchor = anchor.UTC()

	cfg.Aggregator.TriggerMode = getEnv("TRIGGER_MODE", TriggerPolling)
	cfg.Aggregator.Polling.Interval = getEnvInt("POLLING_INTERVAL", 60, &errs)
	cfg.Aggregator.RefreshStream = getEnv("REFRESH_STREAM", "badgewatch:refresh")
	cfg.Aggregator.ConsumerGroup = getEnv("CONSUMER_GROUP", "badgewatch-group")
	cfg.Aggregator.ConsumerName = getEnv("CONSUMER_NAME", "badgewatch-1")
	cfg.Aggregator.BatchSize = getEnvInt("BATCH_SIZE", 10, &errs)

	cfg.Cache.TTL = getEnvInt("CACHE_TTL", 300, &errs)
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")
	cfg.Log.File = getEnv("LOG_FILE", "")

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and enums.
func (c *Config) Validate() error {
	switch c.Aggregator.TriggerMode {
	case TriggerPolling:
	case TriggerEvents:
		if !c.Redis.Enabled {
			return fmt.Errorf("trigger mode %q requires REDIS_ENABLED=true", TriggerEvents)
		}
	default:
		return fmt.Errorf("unsupported trigger mode: %s", c.Aggregator.TriggerMode)
	}
	if c.Dataset.PersonCount <= 0 {
		return fmt.Errorf("BADGEWATCH_PERSON_COUNT must be positive, got %d", c.Dataset.PersonCount)
	}
	if c.Dataset.LookbackDays <= 0 {
		return fmt.Errorf("BADGEWATCH_LOOKBACK_DAYS must be positive, got %d", c.Dataset.LookbackDays)
	}
	if c.Aggregator.Polling.Interval <= 0 {
		return fmt.Errorf("POLLING_INTERVAL must be positive, got %d", c.Aggregator.Polling.Interval)
	}
	if c.Aggregator.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.Aggregator.BatchSize)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("CACHE_TTL must not be negative, got %d", c.Cache.TTL)
	}
	return nil
}

// PollingInterval polling interval as a duration
func (c *Config) PollingInterval() time.Duration {
	return time.Duration(c.Aggregator.Polling.Interval) * time.Second
}

// CacheTTL roster cache TTL as a duration
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTL) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int, errs *[]error) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid integer %q", key, raw))
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(getEnv(key, "")) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
