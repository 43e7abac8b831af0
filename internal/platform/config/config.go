// Package config reads process configuration from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"attest/internal/integrity"
)

const (
	devGrantSigningKey = "dev-grant-signing-key-change-in-production"
	devAdminToken      = "dev-admin-token"
)

type Config struct {
	Addr          string
	Environment   string
	PublicBaseURL string

	// TrustedProxies is a comma-separated CIDR list allowed to set
	// X-Forwarded-For.
	TrustedProxies string
	RequestTimeout time.Duration

	StrictAnchorMatch    bool
	AccessGrantTTL       time.Duration
	AccessGrantSingleUse bool
	GrantSigningKey      string
	AdminAPIToken        string

	StorageTimeout     time.Duration
	AnchorFetchTimeout time.Duration

	FingerprintAlgorithm   integrity.Algorithm
	CanonicalMaxValueBytes int

	SeedDemoData bool
	OTelTracing  bool

	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// DatabaseConfig selects the Postgres backend when URL is set.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig selects the Redis grant and attempt stores when URL is set.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables streaming audit events when Brokers is set.
type KafkaConfig struct {
	Brokers         string
	AuditTopic      string
	Acks            string
	Retries         int
	DeliveryTimeout time.Duration
}

// IsProduction disables demo defaults.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// FromEnv builds Config from environment variables. Malformed values fall
// back to defaults; only missing production secrets are an error.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:          envString("ATTEST_ADDR", ":8080"),
		Environment:   envString("ENVIRONMENT", "development"),
		PublicBaseURL: strings.TrimRight(envString("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),

		TrustedProxies: os.Getenv("TRUSTED_PROXIES"),
		RequestTimeout: envDuration("REQUEST_TIMEOUT", 30*time.Second),

		StrictAnchorMatch:    envBool("STRICT_ANCHOR_MATCH", false),
		AccessGrantTTL:       envDuration("ACCESS_GRANT_TTL", 5*time.Minute),
		AccessGrantSingleUse: envBool("ACCESS_GRANT_SINGLE_USE", true),
		GrantSigningKey:      envString("GRANT_SIGNING_KEY", devGrantSigningKey),
		AdminAPIToken:        envString("ADMIN_API_TOKEN", devAdminToken),

		StorageTimeout:     envDuration("STORAGE_TIMEOUT", 2*time.Second),
		AnchorFetchTimeout: envDuration("ANCHOR_FETCH_TIMEOUT", time.Second),

		FingerprintAlgorithm:   integrity.DefaultAlgorithm,
		CanonicalMaxValueBytes: envInt("CANONICAL_MAX_VALUE_BYTES", 64<<10),

		SeedDemoData: envBool("SEED_DEMO_DATA", false),
		OTelTracing:  envBool("OTEL_TRACING", false),

		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:         os.Getenv("KAFKA_BROKERS"),
			AuditTopic:      envString("VERIFICATION_TOPIC", "credential-audit"),
			Acks:            envString("KAFKA_ACKS", "all"),
			Retries:         envInt("KAFKA_RETRIES", 3),
			DeliveryTimeout: envDuration("KAFKA_DELIVERY_TIMEOUT", 30*time.Second),
		},
	}

	if alg, err := integrity.ParseAlgorithm(os.Getenv("FINGERPRINT_ALGORITHM")); err == nil {
		cfg.FingerprintAlgorithm = alg
	}

	if cfg.IsProduction() {
		if cfg.GrantSigningKey == devGrantSigningKey {
			return Config{}, errors.New("GRANT_SIGNING_KEY must be set in production")
		}
		if cfg.AdminAPIToken == devAdminToken {
			return Config{}, errors.New("ADMIN_API_TOKEN must be set in production")
		}
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return def
}
