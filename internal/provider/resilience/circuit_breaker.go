// Package resilience wraps outbound HTTP calls to delivery providers with a
// circuit breaker and bounded retries.
package resilience

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig holds configuration for the circuit breaker.
type BreakerConfig struct {
	Name string

	// MaxRequests is the number of probe requests allowed while half-open.
	// Default: 1
	MaxRequests uint32

	// Interval clears the failure counts while closed. Zero never clears.
	Interval time.Duration

	// OpenTimeout is how long the breaker stays open before probing.
	// Default: 30 seconds
	OpenTimeout time.Duration

	// ReadyToTrip decides when to open. Defaults to TripOnFailureRatio.
	ReadyToTrip func(counts gobreaker.Counts) bool
}

// DefaultBreakerConfig returns the breaker settings used for push providers.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:        name,
		MaxRequests: 1,
		OpenTimeout: 30 * time.Second,
		ReadyToTrip: TripOnFailureRatio,
	}
}

// TripOnFailureRatio opens the breaker once 10 requests have been seen and at
// least 60% of them failed.
func TripOnFailureRatio(counts gobreaker.Counts) bool {
	if counts.Requests < 10 {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
}

func newBreaker[T any](cfg BreakerConfig, logger zerolog.Logger) *gobreaker.CircuitBreaker[T] {
	readyToTrip := cfg.ReadyToTrip
	if readyToTrip == nil {
		readyToTrip = TripOnFailureRatio
	}

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: readyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
}
