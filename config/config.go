// Package config loads gateway configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults for every tunable. Values are overridden by the environment
// variable of the same name.
const (
	DefaultMaxQueueSize          = 20000
	DefaultWorkerCount           = 2
	DefaultBackpressureThreshold = 0.9
	DefaultBatchSize             = 8
	DefaultBatchTimeoutSeconds   = 0.12
	DefaultMaxInflight           = 2
	DefaultCacheTTLSeconds       = 3600
	DefaultCacheMaxEntries       = 100000
	DefaultStoreMaxEntries       = 200000
	DefaultPort                  = 8000
	DefaultLogLevel              = "info"

	DefaultLLMAPIURL = "https://api.groq.com/openai/v1/chat/completions"
	DefaultLLMModel  = "llama-3.3-70b-versatile"
)

// LLMConfig holds the upstream chat-completion endpoint settings.
type LLMConfig struct {
	APIURL string
	Model  string
	APIKey string
}

// Config holds every knob of the gateway pipeline.
type Config struct {
	MaxQueueSize          int
	WorkerCount           int
	BackpressureThreshold float64
	BatchSize             int
	BatchTimeout          time.Duration
	MaxInflight           int64
	CacheTTL              time.Duration
	CacheMaxEntries       int
	StoreMaxEntries       int
	Port                  int
	LogLevel              string
	LLM                   LLMConfig
}

// FromEnv builds a Config from the process environment, falling back to
// defaults for unset variables.
func FromEnv() (*Config, error) {
	cfg := &Config{
		MaxQueueSize:          envInt("MAX_QUEUE_SIZE", DefaultMaxQueueSize),
		WorkerCount:           envInt("WORKER_COUNT", DefaultWorkerCount),
		BackpressureThreshold: envFloat("BACKPRESSURE_THRESHOLD", DefaultBackpressureThreshold),
		BatchSize:             envInt("BATCH_SIZE", DefaultBatchSize),
		BatchTimeout:          envSeconds("BATCH_TIMEOUT", DefaultBatchTimeoutSeconds),
		MaxInflight:           int64(envInt("MAX_INFLIGHT", DefaultMaxInflight)),
		CacheTTL:              envSeconds("CACHE_TTL", DefaultCacheTTLSeconds),
		CacheMaxEntries:       envInt("CACHE_MAX_ENTRIES", DefaultCacheMaxEntries),
		StoreMaxEntries:       envInt("STORE_MAX_ENTRIES", DefaultStoreMaxEntries),
		Port:                  envInt("PORT", DefaultPort),
		LogLevel:              envString("LOG_LEVEL", DefaultLogLevel),
		LLM: LLMConfig{
			APIURL: envString("LLM_API_URL", DefaultLLMAPIURL),
			Model:  envString("LLM_MODEL", DefaultLLMModel),
			APIKey: os.Getenv("LLM_API_KEY"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with. A worker
// count of zero is allowed; the gateway then admits but never drains, which
// /ready reports as not ready.
func (c *Config) Validate() error {
	if c.MaxQueueSize < 1 {
		return fmt.Errorf("MAX_QUEUE_SIZE must be >= 1, got %d", c.MaxQueueSize)
	}
	if c.WorkerCount < 0 {
		return fmt.Errorf("WORKER_COUNT must be >= 0, got %d", c.WorkerCount)
	}
	if c.BackpressureThreshold <= 0 || c.BackpressureThreshold > 1 {
		return fmt.Errorf("BACKPRESSURE_THRESHOLD must be in (0, 1], got %g", c.BackpressureThreshold)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be >= 1, got %d", c.BatchSize)
	}
	if c.BatchTimeout <= 0 {
		return fmt.Errorf("BATCH_TIMEOUT must be > 0, got %s", c.BatchTimeout)
	}
	if c.MaxInflight < 1 {
		return fmt.Errorf("MAX_INFLIGHT must be >= 1, got %d", c.MaxInflight)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be > 0, got %s", c.CacheTTL)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be in [1, 65535], got %d", c.Port)
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// envSeconds reads a float number of seconds, matching the knobs of the
// deployment environment (e.g. BATCH_TIMEOUT=0.12).
func envSeconds(key string, fallback float64) time.Duration {
	return time.Duration(envFloat(key, fallback) * float64(time.Second))
}
