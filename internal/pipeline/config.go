// Package pipeline turns inbound broker messages into stored readings, alerts
// and notifications.
package pipeline

import (
	"os"
	"strconv"
	"time"
)

// Config holds pipeline tuning knobs.
type Config struct {
	// Workers is the number of messages processed concurrently. With the
	// default of 1, messages are handled in arrival order.
	Workers int

	// PushConcurrency bounds in-flight push sends per alert.
	// Default: 8
	PushConcurrency int

	// PushTimeout bounds a single push send.
	// Default: 15 seconds
	PushTimeout time.Duration
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Workers:         1,
		PushConcurrency: 8,
		PushTimeout:     15 * time.Second,
	}
}

// ConfigFromEnv creates a Config from environment variables.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if n, err := strconv.Atoi(os.Getenv("PIPELINE_WORKERS")); err == nil && n > 0 {
		cfg.Workers = n
	}
	if n, err := strconv.Atoi(os.Getenv("PUSH_CONCURRENCY")); err == nil && n > 0 {
		cfg.PushConcurrency = n
	}
	if d, err := time.ParseDuration(os.Getenv("PUSH_TIMEOUT")); err == nil && d > 0 {
		cfg.PushTimeout = d
	}
	return cfg
}
