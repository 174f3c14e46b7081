// Package config builds runtime configuration from the environment so main
// stays lean. Every knob has a default suitable for local development.
package config

import (
	"os"
	"strconv"
	"time"
)

// BackpressurePolicy selects what Acquire does when the schema client cap is
// reached and no idle entry can be evicted.
type BackpressurePolicy string

const (
	// BackpressureReject fails fast with a saturation error.
	BackpressureReject BackpressurePolicy = "reject"
	// BackpressureWait blocks until capacity frees up or the context ends.
	BackpressureWait BackpressurePolicy = "wait"
)

// Server captures process-level configuration.
type Server struct {
	Addr        string
	Environment string
	AdminToken  string

	JWTSigningKey string

	Database DatabaseConfig
	Cache    CacheConfig
	Resolver ResolverConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// DatabaseConfig holds control-plane database connection configuration.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Per-schema client pools are deliberately small; the cache bounds how
	// many of them exist at once.
	SchemaMaxOpenConns int
	SchemaMaxIdleConns int
}

// CacheConfig tunes the schema-scoped client cache.
type CacheConfig struct {
	MaxClients       int
	IdleTTL          time.Duration
	SweepInterval    time.Duration
	ConstructTimeout time.Duration
	Backpressure     BackpressurePolicy
}

// ResolverConfig tunes the tenant resolver's status read cache.
type ResolverConfig struct {
	CacheTTL time.Duration
}

// RedisConfig holds configuration for the optional Redis-backed resolver cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds configuration for the audit event producer.
type KafkaConfig struct {
	Brokers         string
	AuditTopic      string
	Acks            string
	Retries         int
	DeliveryTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	return Server{
		Addr:          envString("KOPRA_ADDR", ":8080"),
		Environment:   envString("KOPRA_ENV", "development"),
		AdminToken:    envString("KOPRA_ADMIN_TOKEN", ""),
		JWTSigningKey: envString("KOPRA_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Database: DatabaseConfig{
			URL:                envString("KOPRA_DATABASE_URL", ""),
			MaxOpenConns:       envInt("KOPRA_DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:       envInt("KOPRA_DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:    envDuration("KOPRA_DB_CONN_MAX_LIFETIME", 5*time.Minute),
			SchemaMaxOpenConns: envInt("KOPRA_SCHEMA_MAX_OPEN_CONNS", 4),
			SchemaMaxIdleConns: envInt("KOPRA_SCHEMA_MAX_IDLE_CONNS", 1),
		},
		Cache: CacheConfig{
			MaxClients:       envInt("KOPRA_CACHE_MAX_CLIENTS", 100),
			IdleTTL:          envDuration("KOPRA_CACHE_IDLE_TTL", 10*time.Minute),
			SweepInterval:    envDuration("KOPRA_CACHE_SWEEP_INTERVAL", time.Minute),
			ConstructTimeout: envDuration("KOPRA_CACHE_CONSTRUCT_TIMEOUT", 10*time.Second),
			Backpressure:     backpressure(envString("KOPRA_CACHE_BACKPRESSURE", "reject")),
		},
		Resolver: ResolverConfig{
			CacheTTL: envDuration("KOPRA_RESOLVER_CACHE_TTL", 30*time.Second),
		},
		Redis: RedisConfig{
			URL:          envString("KOPRA_REDIS_URL", ""),
			PoolSize:     envInt("KOPRA_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("KOPRA_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("KOPRA_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("KOPRA_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("KOPRA_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:         envString("KOPRA_KAFKA_BROKERS", ""),
			AuditTopic:      envString("KOPRA_KAFKA_AUDIT_TOPIC", "kopra.tenant-lifecycle"),
			Acks:            envString("KOPRA_KAFKA_ACKS", "all"),
			Retries:         envInt("KOPRA_KAFKA_RETRIES", 3),
			DeliveryTimeout: envDuration("KOPRA_KAFKA_DELIVERY_TIMEOUT", 10*time.Second),
		},
	}
}

func backpressure(v string) BackpressurePolicy {
	if v == string(BackpressureWait) {
		return BackpressureWait
	}
	return BackpressureReject
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
