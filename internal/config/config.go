package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// Config holds all agent configuration
type Config struct {
	DatabasePath  string      `json:"databasePath"`
	StatusAddress string      `json:"statusAddress"`
	Remote        Remote      `json:"remote"`
	Realtime      Realtime    `json:"realtime"`
	Security      Security    `json:"security"`
	Sync          RetryConfig `json:"sync"`
	Tracing       Tracing     `json:"tracing"`
}

// Remote configures the shared backend. BaseURL selects the HTTP backend;
// DatabaseURL selects the direct Postgres backend instead.
type Remote struct {
	BaseURL      string `json:"baseUrl"`
	APIKey       string `json:"apiKey"`
	APIKeyHeader string `json:"apiKeyHeader"`
	DatabaseURL  string `json:"databaseUrl"`
}

// IsConfigured reports whether any backend credentials are present
func (r Remote) IsConfigured() bool {
	return r.BaseURL != "" || r.DatabaseURL != ""
}

// UsePostgres returns true if the direct Postgres backend should be used
func (r Remote) UsePostgres() bool {
	return r.DatabaseURL != ""
}

// Realtime configures the inbound change feed
type Realtime struct {
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
}

// Security configuration for the local status API
type Security struct {
	APIKey       string `json:"apiKey"`
	APIKeyHeader string `json:"apiKeyHeader"`
}

// Tracing configuration
type Tracing struct {
	Endpoint string `json:"endpoint"`
}

// RetryConfig is the immutable retry/backoff/batch configuration shared by
// the queue processor and the scheduler. Constructed once at process start.
type RetryConfig struct {
	MaxRetries      int     `json:"maxRetries"`
	BackoffDelaysMs []int64 `json:"backoffDelaysMs"`
	BatchSize       int     `json:"batchSize"`
	SyncIntervalMs  int64   `json:"syncIntervalMs"`
}

// GetDelay returns the backoff delay for a retry attempt. The last delay
// repeats for attempts beyond the configured list.
func (c RetryConfig) GetDelay(retryCount int) time.Duration {
	if len(c.BackoffDelaysMs) == 0 {
		return 0
	}
	idx := retryCount
	if idx >= len(c.BackoffDelaysMs) {
		idx = len(c.BackoffDelaysMs) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return time.Duration(c.BackoffDelaysMs[idx]) * time.Millisecond
}

// ShouldRetry reports whether another attempt is allowed
func (c RetryConfig) ShouldRetry(retryCount int) bool {
	return retryCount < c.MaxRetries
}

// SyncInterval returns the periodic trigger cadence
func (c RetryConfig) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMs) * time.Millisecond
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      5,
		BackoffDelaysMs: []int64{1000, 2000, 4000, 8000, 16000},
		BatchSize:       10,
		SyncIntervalMs:  30000,
	}
}

// Default configuration
func defaultConfig() *Config {
	return &Config{
		DatabasePath:  "medistock.db",
		StatusAddress: ":5600",
		Remote: Remote{
			APIKeyHeader: "apikey",
		},
		Realtime: Realtime{
			Enabled: true,
		},
		Security: Security{
			APIKeyHeader: "X-API-Key",
		},
		Sync: DefaultRetryConfig(),
	}
}

// Load loads configuration from file or environment
func Load() (*Config, error) {
	cfg := defaultConfig()

	// Try to load from config file
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// Override from environment variables
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if addr := os.Getenv("STATUS_ADDRESS"); addr != "" {
		cfg.StatusAddress = addr
	}
	if baseURL := os.Getenv("REMOTE_URL"); baseURL != "" {
		cfg.Remote.BaseURL = baseURL
	}
	if apiKey := os.Getenv("REMOTE_API_KEY"); apiKey != "" {
		cfg.Remote.APIKey = apiKey
	}
	if dbURL := os.Getenv("REMOTE_DATABASE_URL"); dbURL != "" {
		cfg.Remote.DatabaseURL = dbURL
	}
	if rtURL := os.Getenv("REALTIME_URL"); rtURL != "" {
		cfg.Realtime.URL = rtURL
	}
	if enabled := os.Getenv("REALTIME_ENABLED"); enabled != "" {
		cfg.Realtime.Enabled = enabled == "true" || enabled == "1"
	}
	if apiKey := os.Getenv("STATUS_API_KEY"); apiKey != "" {
		cfg.Security.APIKey = apiKey
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Tracing.Endpoint = endpoint
	}
	if interval := os.Getenv("SYNC_INTERVAL_MS"); interval != "" {
		if ms, err := strconv.ParseInt(interval, 10, 64); err == nil && ms > 0 {
			cfg.Sync.SyncIntervalMs = ms
		}
	}
	if batch := os.Getenv("SYNC_BATCH_SIZE"); batch != "" {
		if n, err := strconv.Atoi(batch); err == nil && n > 0 {
			cfg.Sync.BatchSize = n
		}
	}

	return cfg, nil
}
