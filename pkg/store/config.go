package store

import "time"

// Backend names accepted by Config.Type.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config selects and tunes the storage backend. The backend is chosen once at
// process startup; components receive a Store and never inspect its concrete
// type.
type Config struct {
	Type string `yaml:"type"`

	// PostgreSQL config
	PostgresURL      string        `yaml:"postgres_url"`
	PostgresMaxConns int           `yaml:"postgres_max_conns"`
	PostgresMinConns int           `yaml:"postgres_min_conns"`
	PostgresTimeout  time.Duration `yaml:"postgres_timeout"`

	// Redis config (optional token revocation cache)
	RedisURL        string `yaml:"redis_url"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	RedisMaxRetries int    `yaml:"redis_max_retries"`
	RedisPoolSize   int    `yaml:"redis_pool_size"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Type:             BackendMemory,
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
	}
}
