package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryConfig_GetDelay(t *testing.T) {
	cfg := DefaultRetryConfig()

	t.Run("walks the backoff ladder", func(t *testing.T) {
		assert.Equal(t, 1*time.Second, cfg.GetDelay(0))
		assert.Equal(t, 2*time.Second, cfg.GetDelay(1))
		assert.Equal(t, 4*time.Second, cfg.GetDelay(2))
		assert.Equal(t, 8*time.Second, cfg.GetDelay(3))
		assert.Equal(t, 16*time.Second, cfg.GetDelay(4))
	})

	t.Run("repeats the last delay past the ladder", func(t *testing.T) {
		assert.Equal(t, 16*time.Second, cfg.GetDelay(5))
		assert.Equal(t, 16*time.Second, cfg.GetDelay(100))
	})

	t.Run("clamps negative attempts", func(t *testing.T) {
		assert.Equal(t, 1*time.Second, cfg.GetDelay(-1))
	})

	t.Run("empty ladder yields zero", func(t *testing.T) {
		assert.Equal(t, time.Duration(0), RetryConfig{}.GetDelay(0))
	})
}

func TestRetryConfig_ShouldRetry(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.True(t, cfg.ShouldRetry(0))
	assert.True(t, cfg.ShouldRetry(4))
	assert.False(t, cfg.ShouldRetry(5))
	assert.False(t, cfg.ShouldRetry(6))
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, []int64{1000, 2000, 4000, 8000, 16000}, cfg.BackoffDelaysMs)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.SyncInterval())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/nonexistent/config.json")
	t.Setenv("DATABASE_PATH", "/tmp/test.db")
	t.Setenv("REMOTE_URL", "https://backend.example.com")
	t.Setenv("SYNC_INTERVAL_MS", "5000")
	t.Setenv("SYNC_BATCH_SIZE", "25")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "/tmp/test.db", cfg.DatabasePath)
	assert.Equal(t, "https://backend.example.com", cfg.Remote.BaseURL)
	assert.True(t, cfg.Remote.IsConfigured())
	assert.False(t, cfg.Remote.UsePostgres())
	assert.Equal(t, 5*time.Second, cfg.Sync.SyncInterval())
	assert.Equal(t, 25, cfg.Sync.BatchSize)
}
