package config

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"session-auth/internal/db"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	os.Clearenv()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, nil)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":8080" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":8080")
	}
	if cfg.Dialect() != db.DialectPostgres {
		t.Errorf("Dialect = %q, want postgres", cfg.Dialect())
	}
	if cfg.JWTIssuer != "session-auth" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "session-auth")
	}
	if cfg.JWTAudience != "session-auth-api" {
		t.Errorf("JWTAudience = %q, want %q", cfg.JWTAudience, "session-auth-api")
	}
	if cfg.AccessTTL() != 15*time.Minute {
		t.Errorf("AccessTTL = %v, want 15m", cfg.AccessTTL())
	}
	if cfg.RefreshTTL() != 168*time.Hour {
		t.Errorf("RefreshTTL = %v, want 168h", cfg.RefreshTTL())
	}
	if cfg.BcryptCost != 10 {
		t.Errorf("BcryptCost = %d, want 10", cfg.BcryptCost)
	}
	if cfg.RefreshReuseRevokeAll {
		t.Error("RefreshReuseRevokeAll should default to false")
	}
	if cfg.AuthEventsTopic != "session-auth-events" {
		t.Errorf("AuthEventsTopic = %q", cfg.AuthEventsTopic)
	}
	if cfg.Level() != zerolog.InfoLevel {
		t.Errorf("Level = %v, want info", cfg.Level())
	}
	if cfg.PurgeInterval() != time.Hour {
		t.Errorf("PurgeInterval = %v, want 1h", cfg.PurgeInterval())
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	setEnv(t, map[string]string{
		"GRPC_ADDR":                ":9090",
		"DATABASE_DRIVER":          "sqlite",
		"JWT_ISSUER":               "custom-issuer",
		"BCRYPT_COST":              "12",
		"REFRESH_REUSE_REVOKE_ALL": "true",
		"LOG_LEVEL":                "DEBUG",
		"KAFKA_BROKERS":            "a:9092, b:9092,",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":9090" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":9090")
	}
	if cfg.Dialect() != db.DialectSQLite {
		t.Errorf("Dialect = %q, want sqlite", cfg.Dialect())
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "custom-issuer")
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if !cfg.RefreshReuseRevokeAll {
		t.Error("RefreshReuseRevokeAll = false, want true")
	}
	if cfg.Level() != zerolog.DebugLevel {
		t.Errorf("Level = %v, want debug", cfg.Level())
	}
	brokers := cfg.KafkaBrokersList()
	if len(brokers) != 2 || brokers[0] != "a:9092" || brokers[1] != "b:9092" {
		t.Errorf("KafkaBrokersList = %v", brokers)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bcrypt too low", map[string]string{"BCRYPT_COST": "3"}},
		{"bcrypt too high", map[string]string{"BCRYPT_COST": "32"}},
		{"negative hash concurrency", map[string]string{"HASH_CONCURRENCY": "-1"}},
		{"unknown driver", map[string]string{"DATABASE_DRIVER": "mysql"}},
		{"unknown log level", map[string]string{"LOG_LEVEL": "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.env)
			if _, err := Load(); err == nil {
				t.Error("Load: want error")
			}
		})
	}
}

func TestValidateAuth(t *testing.T) {
	base := func() Config {
		return Config{
			DatabaseURL:      "postgres://localhost/auth",
			JWTIssuer:        "iss",
			JWTAudience:      "aud",
			JWTAccessSecret:  "access",
			JWTRefreshSecret: "refresh",
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"hmac secrets", func(*Config) {}, false},
		{"no database", func(c *Config) { c.DatabaseURL = "" }, true},
		{"no issuer", func(c *Config) { c.JWTIssuer = "" }, true},
		{"missing refresh secret", func(c *Config) { c.JWTRefreshSecret = "" }, true},
		{"equal secrets", func(c *Config) { c.JWTRefreshSecret = "access" }, true},
		{"key pair", func(c *Config) {
			c.JWTAccessSecret, c.JWTRefreshSecret = "", ""
			c.JWTPrivateKey, c.JWTPublicKey = "priv", "pub"
		}, false},
		{"private key without public", func(c *Config) { c.JWTPrivateKey = "priv" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.ValidateAuth()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAuth = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDurations_FallBack(t *testing.T) {
	c := &Config{JWTAccessTTL: "bogus", JWTRefreshTTL: "-1h", GoogleJWKSTimeout: "0s", LedgerPurgeInterval: ""}
	if c.AccessTTL() != 15*time.Minute {
		t.Errorf("AccessTTL = %v", c.AccessTTL())
	}
	if c.RefreshTTL() != 168*time.Hour {
		t.Errorf("RefreshTTL = %v", c.RefreshTTL())
	}
	if c.JWKSTimeout() != 5*time.Second {
		t.Errorf("JWKSTimeout = %v", c.JWKSTimeout())
	}
	if c.PurgeInterval() != time.Hour {
		t.Errorf("PurgeInterval = %v", c.PurgeInterval())
	}

	c = &Config{JWTAccessTTL: "5m", JWTRefreshTTL: "24h"}
	if c.AccessTTL() != 5*time.Minute || c.RefreshTTL() != 24*time.Hour {
		t.Errorf("AccessTTL, RefreshTTL = %v, %v", c.AccessTTL(), c.RefreshTTL())
	}
}

func TestKafkaBrokersList_Empty(t *testing.T) {
	var nilCfg *Config
	if nilCfg.KafkaBrokersList() != nil {
		t.Error("nil config: want nil")
	}
	if (&Config{}).KafkaBrokersList() != nil {
		t.Error("empty brokers: want nil")
	}
}
