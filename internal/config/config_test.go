package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "test-secret")
	t.Setenv("POSTGRES_DSN", "postgres://localhost:5432/clinic")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, StorePostgres, cfg.StoreDriver)
	assert.Equal(t, 15*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 3*time.Second, cfg.LockAcquireTimeout)
	assert.Equal(t, 60, cfg.BookingRateLimit)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	assert.Equal(t, int32(10), cfg.PgMaxConns)
	assert.Equal(t, 10, cfg.RedisPoolSize)
}

func TestLoadPoolSizes(t *testing.T) {
	setRequired(t)
	t.Setenv("PG_MAX_CONNS", "25")
	t.Setenv("REDIS_POOL_SIZE", "40")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int32(25), cfg.PgMaxConns)
	assert.Equal(t, 40, cfg.RedisPoolSize)
}

func TestLoadRequiredSettings(t *testing.T) {
	t.Run("missing token secret", func(t *testing.T) {
		t.Setenv("TOKEN_SECRET", "")
		t.Setenv("POSTGRES_DSN", "postgres://localhost:5432/clinic")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("missing dsn with postgres driver", func(t *testing.T) {
		t.Setenv("TOKEN_SECRET", "test-secret")
		t.Setenv("POSTGRES_DSN", "")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("memory driver needs no dsn", func(t *testing.T) {
		t.Setenv("TOKEN_SECRET", "test-secret")
		t.Setenv("POSTGRES_DSN", "")
		t.Setenv("STORE_DRIVER", StoreMemory)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, StoreMemory, cfg.StoreDriver)
	})

	t.Run("unknown driver rejected", func(t *testing.T) {
		setRequired(t)
		t.Setenv("STORE_DRIVER", "sqlite")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestLoadRedisURL(t *testing.T) {
	setRequired(t)
	t.Setenv("REDIS_URL", "redis://user:pw@redis.internal:6380")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", cfg.RedisAddr)
	assert.Equal(t, "user", cfg.RedisUsername)
	assert.Equal(t, "pw", cfg.RedisPassword)
}

func TestGetDuration(t *testing.T) {
	t.Setenv("X_SECONDS", "30")
	assert.Equal(t, 30*time.Second, getDuration("X_SECONDS", time.Minute))

	t.Setenv("X_PARSED", "250ms")
	assert.Equal(t, 250*time.Millisecond, getDuration("X_PARSED", time.Minute))

	assert.Equal(t, time.Minute, getDuration("X_UNSET", time.Minute))
}
