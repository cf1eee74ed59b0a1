// Package config loads service configuration from an optional YAML file
// overlaid with environment variables. Environment always wins so container
// deployments can override a baked-in file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gatehouse-io/gatehouse/pkg/observability"
	"github.com/gatehouse-io/gatehouse/pkg/store"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Store configuration
	Store store.Config `yaml:"store"`

	// Token configuration
	Token TokenConfig `yaml:"token"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds the health/metrics HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HealthPort      string        `yaml:"health_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TokenConfig holds token issuance settings
type TokenConfig struct {
	// SigningSecret signs credential envelopes. Required when credential
	// encoding is used.
	SigningSecret string `yaml:"signing_secret"`

	// Issuer is the iss claim on encoded credentials.
	Issuer string `yaml:"issuer"`

	// DefaultTTL applies when a caller issues without an explicit ttl.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// PurgeSchedule is a cron expression for the expired-token sweep.
	PurgeSchedule string `yaml:"purge_schedule"`

	// DecodeCacheSize bounds the parsed-claims LRU. Zero disables it.
	DecodeCacheSize int `yaml:"decode_cache_size"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	AuditEnabled   bool   `yaml:"audit_enabled"`
}

// Default returns the baseline configuration before file and env overlays.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			HealthPort:      "9090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Store: store.DefaultConfig(),
		Token: TokenConfig{
			Issuer:          "gatehouse",
			DefaultTTL:      time.Hour,
			PurgeSchedule:   "@every 5m",
			DecodeCacheSize: 1024,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			MetricsEnabled: true,
			AuditEnabled:   true,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	// Server
	c.Server.Host = getEnv("GATEHOUSE_HOST", c.Server.Host)
	c.Server.HealthPort = getEnv("GATEHOUSE_HEALTH_PORT", c.Server.HealthPort)
	c.Server.ReadTimeout = getEnvDuration("GATEHOUSE_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("GATEHOUSE_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("GATEHOUSE_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("GATEHOUSE_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	// Store
	c.Store.Type = getEnv("GATEHOUSE_STORE_TYPE", c.Store.Type)
	c.Store.PostgresURL = getEnv("GATEHOUSE_POSTGRES_URL", c.Store.PostgresURL)
	c.Store.PostgresMaxConns = getEnvInt("GATEHOUSE_POSTGRES_MAX_CONNS", c.Store.PostgresMaxConns)
	c.Store.PostgresMinConns = getEnvInt("GATEHOUSE_POSTGRES_MIN_CONNS", c.Store.PostgresMinConns)
	c.Store.PostgresTimeout = getEnvDuration("GATEHOUSE_POSTGRES_TIMEOUT", c.Store.PostgresTimeout)
	c.Store.RedisURL = getEnv("GATEHOUSE_REDIS_URL", c.Store.RedisURL)
	c.Store.RedisPassword = getEnv("GATEHOUSE_REDIS_PASSWORD", c.Store.RedisPassword)
	c.Store.RedisDB = getEnvInt("GATEHOUSE_REDIS_DB", c.Store.RedisDB)
	c.Store.RedisMaxRetries = getEnvInt("GATEHOUSE_REDIS_MAX_RETRIES", c.Store.RedisMaxRetries)
	c.Store.RedisPoolSize = getEnvInt("GATEHOUSE_REDIS_POOL_SIZE", c.Store.RedisPoolSize)

	// Token
	c.Token.SigningSecret = getEnv("GATEHOUSE_SIGNING_SECRET", c.Token.SigningSecret)
	c.Token.Issuer = getEnv("GATEHOUSE_TOKEN_ISSUER", c.Token.Issuer)
	c.Token.DefaultTTL = getEnvDuration("GATEHOUSE_TOKEN_DEFAULT_TTL", c.Token.DefaultTTL)
	c.Token.PurgeSchedule = getEnv("GATEHOUSE_TOKEN_PURGE_SCHEDULE", c.Token.PurgeSchedule)
	c.Token.DecodeCacheSize = getEnvInt("GATEHOUSE_TOKEN_DECODE_CACHE_SIZE", c.Token.DecodeCacheSize)

	// Observability
	c.Observability.LogLevel = getEnv("GATEHOUSE_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.MetricsEnabled = getEnvBool("GATEHOUSE_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.AuditEnabled = getEnvBool("GATEHOUSE_AUDIT_ENABLED", c.Observability.AuditEnabled)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}

	switch c.Store.Type {
	case store.BackendMemory:
		// nothing extra
	case store.BackendPostgres:
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres store")
		}
	default:
		return fmt.Errorf("invalid store type: %s (must be memory or postgres)", c.Store.Type)
	}

	if c.Token.DefaultTTL <= 0 {
		return fmt.Errorf("token default ttl must be positive")
	}
	if c.Token.PurgeSchedule == "" {
		return fmt.Errorf("token purge schedule is required")
	}
	return nil
}

// LogLevel converts the configured string to an observability level.
func (c *Config) LogLevel() observability.LogLevel {
	return observability.ParseLogLevel(c.Observability.LogLevel)
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
