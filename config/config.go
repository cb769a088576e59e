// Package config loads server settings from the environment and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"radar_server/models"
)

// Storage backends selectable with STORE_DRIVER
const (
	DriverMemory   = "memory"
	DriverDynamoDB = "dynamodb"
	DriverPostgres = "postgres"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	Port      string `mapstructure:"PORT"`
	AWSRegion string `mapstructure:"AWS_REGION"`
	// StoreDriver picks the persistence backend: memory, dynamodb or postgres.
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	// DatabaseURL is the Postgres DSN, required when StoreDriver is postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// S3BucketName holds profile pictures. Picture keys are returned unsigned when empty.
	S3BucketName string `mapstructure:"S3_BUCKET_NAME"`
	// JWTSecret verifies HS256 bearer tokens. Empty trusts the X-User-Id header (dev only).
	JWTSecret string `mapstructure:"JWT_SECRET"`

	SessionLiveness  string `mapstructure:"SESSION_LIVENESS"`
	SessionRecordTTL string `mapstructure:"SESSION_RECORD_TTL"`
	SignalTTL        string `mapstructure:"SIGNAL_TTL"`
	ChatTTL          string `mapstructure:"CHAT_TTL"`

	// AllowedOrigins is a comma-separated CORS allow list.
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
}

// Load reads .env (if present), then builds and validates Config from the environment.
// Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing .env is fine

	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("AWS_REGION", "ap-south-1")
	v.SetDefault("STORE_DRIVER", DriverMemory)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("S3_BUCKET_NAME", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("SESSION_LIVENESS", models.DefaultSessionLiveness.String())
	v.SetDefault("SESSION_RECORD_TTL", models.DefaultSessionRecordTTL.String())
	v.SetDefault("SIGNAL_TTL", models.DefaultSignalTTL.String())
	v.SetDefault("CHAT_TTL", models.DefaultChatTTL.String())
	v.SetDefault("ALLOWED_ORIGINS", "*")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	switch cfg.StoreDriver {
	case DriverMemory, DriverDynamoDB:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL must be set when STORE_DRIVER=postgres")
		}
	default:
		return nil, fmt.Errorf("config: unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.Port == "" {
		return nil, errors.New("config: PORT must be set")
	}

	for key, value := range map[string]string{
		"SESSION_LIVENESS":   cfg.SessionLiveness,
		"SESSION_RECORD_TTL": cfg.SessionRecordTTL,
		"SIGNAL_TTL":         cfg.SignalTTL,
		"CHAT_TTL":           cfg.ChatTTL,
	} {
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			return nil, fmt.Errorf("config: %s must be a positive duration, got %q", key, value)
		}
	}

	return &cfg, nil
}

// Liveness is how long a location report keeps a user discoverable.
func (c *Config) Liveness() time.Duration {
	return parseDuration(c.SessionLiveness, models.DefaultSessionLiveness)
}

// RecordTTL is how long the store keeps a session record.
func (c *Config) RecordTTL() time.Duration {
	return parseDuration(c.SessionRecordTTL, models.DefaultSessionRecordTTL)
}

func (c *Config) SignalLifetime() time.Duration {
	return parseDuration(c.SignalTTL, models.DefaultSignalTTL)
}

// ChatLifetime is the rolling expiry window refreshed by each message.
func (c *Config) ChatLifetime() time.Duration {
	return parseDuration(c.ChatTTL, models.DefaultChatTTL)
}

// Origins returns the CORS allow list from the comma-separated config.
func (c *Config) Origins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
