package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("PORT", "")
	t.Setenv("SESSION_LIVENESS", "")
	t.Setenv("SIGNAL_TTL", "")
	t.Setenv("CHAT_TTL", "")
	t.Setenv("SESSION_RECORD_TTL", "")
	t.Setenv("ALLOWED_ORIGINS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 30*time.Minute, cfg.Liveness())
	assert.Equal(t, 24*time.Hour, cfg.RecordTTL())
	assert.Equal(t, 24*time.Hour, cfg.SignalLifetime())
	assert.Equal(t, 720*time.Hour, cfg.ChatLifetime())
	assert.Equal(t, []string{"*"}, cfg.Origins())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://radar@localhost/radar?sslmode=disable")
	t.Setenv("SESSION_LIVENESS", "5m")
	t.Setenv("CHAT_TTL", "48h")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 5*time.Minute, cfg.Liveness())
	assert.Equal(t, 48*time.Hour, cfg.ChatLifetime())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Origins())
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "mongo")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("postgres without dsn", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "postgres")
		t.Setenv("DATABASE_URL", "")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "memory")
		t.Setenv("SIGNAL_TTL", "tomorrow")
		_, err := Load()
		assert.Error(t, err)
	})
}
