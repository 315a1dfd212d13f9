// Package retry provides bounded exponential backoff for remote model calls.
package retry

import (
	"math/rand/v2"
	"time"

	"dungeonmaster/pkg/agent/llmerrors"
)

// Default bounds for remote calls.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 8 * time.Second
)

// Config defines configuration for retry behavior.
type Config struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts"` // Maximum number of attempts (including initial)
	BaseDelay   time.Duration `json:"base_delay" yaml:"base_delay"`     // Delay after the first failed attempt
	MaxDelay    time.Duration `json:"max_delay" yaml:"max_delay"`       // Maximum delay between retries
	Jitter      bool          `json:"jitter" yaml:"jitter"`             // Spread delays by up to ±10%
}

// DefaultConfig returns the default retry bounds: 3 attempts, 1s base, 8s cap.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// Classifier determines if an error should be retried.
type Classifier func(error) bool

// ShouldRetry is the default error classifier. Rate limits, timeouts,
// connectivity failures and 5xx responses are transient; auth, malformed
// requests, not-found and anything unclassified are fatal.
func ShouldRetry(err error) bool {
	return llmerrors.IsTransient(err)
}

// Policy encapsulates retry configuration and logic.
//
//nolint:govet // Simple struct, logical grouping preferred
type Policy struct {
	Config     Config
	Classifier Classifier
}

// NewPolicy creates a new retry policy with the given configuration and classifier.
func NewPolicy(config Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = ShouldRetry
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Policy{
		Config:     config,
		Classifier: classifier,
	}
}

// CalculateDelay computes the sleep after the given failed attempt (1-based):
// min(base * 2^(attempt-1), max).
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}

	delay := p.Config.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.Config.MaxDelay > 0 && delay >= p.Config.MaxDelay {
			break
		}
	}
	if p.Config.MaxDelay > 0 && delay > p.Config.MaxDelay {
		delay = p.Config.MaxDelay
	}

	if p.Config.Jitter && delay > 0 {
		spread := float64(delay) * 0.1
		delay += time.Duration((rand.Float64()*2 - 1) * spread) //nolint:gosec // jitter does not need crypto randomness
	}
	return delay
}

// ShouldRetry determines if an error should be retried based on the configured classifier.
func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}
