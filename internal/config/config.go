// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"session-auth/internal/db"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseDriver is "postgres" or "sqlite".
	DatabaseDriver string `mapstructure:"DATABASE_DRIVER"`
	// DatabaseURL is the Postgres DSN or the SQLite file path.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// JWTAccessSecret and JWTRefreshSecret select HS256 with separate keys per token kind.
	JWTAccessSecret  string `mapstructure:"JWT_ACCESS_SECRET"`
	JWTRefreshSecret string `mapstructure:"JWT_REFRESH_SECRET"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	// Takes precedence over the HMAC secrets when set.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 10.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// HashConcurrency bounds concurrent bcrypt operations; 0 uses GOMAXPROCS.
	HashConcurrency int `mapstructure:"HASH_CONCURRENCY"`

	// GoogleClientID enables LoginWithGoogle when set.
	GoogleClientID string `mapstructure:"GOOGLE_CLIENT_ID"`
	// GoogleIssuer and GoogleJWKSURL override Google's production endpoints (tests, emulators).
	GoogleIssuer  string `mapstructure:"GOOGLE_ISSUER"`
	GoogleJWKSURL string `mapstructure:"GOOGLE_JWKS_URL"`
	// GoogleJWKSTimeout bounds each key fetch (e.g. "5s").
	GoogleJWKSTimeout string `mapstructure:"GOOGLE_JWKS_TIMEOUT"`
	// FederationLinkPolicy is an optional path to a Rego file replacing the default link policy.
	FederationLinkPolicy string `mapstructure:"FEDERATION_LINK_POLICY"`

	// RefreshReuseRevokeAll revokes every session of a user when a refresh token is replayed.
	RefreshReuseRevokeAll bool `mapstructure:"REFRESH_REUSE_REVOKE_ALL"`
	// LedgerPurgeInterval is how often the worker deletes expired and revoked ledger entries.
	LedgerPurgeInterval string `mapstructure:"LEDGER_PURGE_INTERVAL"`

	// OTLPEndpoint is the OTLP gRPC collector; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// Auth events (optional). When Kafka brokers are set, the server also emits auth events to Kafka.
	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AuthEventsTopic is the Kafka topic for auth events.
	AuthEventsTopic string `mapstructure:"AUTH_EVENTS_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the event worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the event worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if generic fields are invalid;
// ValidateAuth checks what the server additionally needs.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_DRIVER", "postgres")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ACCESS_SECRET", "")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "session-auth")
	v.SetDefault("JWT_AUDIENCE", "session-auth-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("HASH_CONCURRENCY", 0)
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_ISSUER", "")
	v.SetDefault("GOOGLE_JWKS_URL", "")
	v.SetDefault("GOOGLE_JWKS_TIMEOUT", "5s")
	v.SetDefault("FEDERATION_LINK_POLICY", "")
	v.SetDefault("REFRESH_REUSE_REVOKE_ALL", false)
	v.SetDefault("LEDGER_PURGE_INTERVAL", "1h")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUTH_EVENTS_KAFKA_TOPIC", "session-auth-events")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "session-auth-event-worker")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}
	if _, err := db.ParseDialect(cfg.DatabaseDriver); err != nil {
		return nil, fmt.Errorf("config: DATABASE_DRIVER: %w", err)
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 10
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.HashConcurrency < 0 {
		return nil, errors.New("config: HASH_CONCURRENCY must not be negative")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}

	return &cfg, nil
}

// ValidateAuth checks the fields the server needs to issue tokens: a database,
// an issuer and audience, and either a PEM key pair or both HMAC secrets.
func (c *Config) ValidateAuth() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("config: DATABASE_URL must be set")
	}
	if c.JWTIssuer == "" || c.JWTAudience == "" {
		return errors.New("config: JWT_ISSUER and JWT_AUDIENCE must be set")
	}
	if c.UsesKeyPair() {
		if c.JWTPublicKey == "" {
			return errors.New("config: JWT_PUBLIC_KEY must be set with JWT_PRIVATE_KEY")
		}
		return nil
	}
	if c.JWTAccessSecret == "" || c.JWTRefreshSecret == "" {
		return errors.New("config: set JWT_PRIVATE_KEY/JWT_PUBLIC_KEY or both JWT_ACCESS_SECRET and JWT_REFRESH_SECRET")
	}
	if c.JWTAccessSecret == c.JWTRefreshSecret {
		return errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	return nil
}

// UsesKeyPair reports whether tokens are signed with an asymmetric key pair.
func (c *Config) UsesKeyPair() bool {
	return c.JWTPrivateKey != ""
}

// Dialect returns the parsed DATABASE_DRIVER. Load has already validated it.
func (c *Config) Dialect() db.Dialect {
	d, _ := db.ParseDialect(c.DatabaseDriver)
	return d
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Level returns the parsed LOG_LEVEL.
func (c *Config) Level() zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return durationOr(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return durationOr(c.JWTRefreshTTL, 168*time.Hour)
}

// JWKSTimeout parses GoogleJWKSTimeout. Returns 5s if unset or invalid.
func (c *Config) JWKSTimeout() time.Duration {
	return durationOr(c.GoogleJWKSTimeout, 5*time.Second)
}

// PurgeInterval parses LedgerPurgeInterval. Returns 1h if unset or invalid.
func (c *Config) PurgeInterval() time.Duration {
	return durationOr(c.LedgerPurgeInterval, time.Hour)
}

func durationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if Kafka is enabled (non-empty list) and to create the producer and reader.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
