// Package circuit stops calling a model provider that keeps failing and
// probes it again after a cool-down.
package circuit

import (
	"fmt"
	"sync"
	"time"
)

// State represents the current state of a circuit breaker.
type State int

// Circuit breaker states.
const (
	Closed   State = iota // Normal operation
	Open                  // Failing, reject requests
	HalfOpen              // Probing whether the provider recovered
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Defaults.
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 1
	DefaultOpenTimeout      = 30 * time.Second
)

// Config tunes when a breaker opens and how long it stays open.
type Config struct {
	// FailureThreshold is the number of consecutive provider failures before opening.
	FailureThreshold int `yaml:"failure_threshold" env:"DM_CIRCUIT_FAILURE_THRESHOLD"`
	// SuccessThreshold is the number of probe successes needed to close again.
	SuccessThreshold int `yaml:"success_threshold" env:"DM_CIRCUIT_SUCCESS_THRESHOLD"`
	// OpenTimeout is the cool-down before the first probe.
	OpenTimeout time.Duration `yaml:"open_timeout" env:"DM_CIRCUIT_OPEN_TIMEOUT"`
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = DefaultSuccessThreshold
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = DefaultOpenTimeout
	}
	return c
}

// Error is returned instead of calling a provider whose circuit is open.
type Error struct {
	Provider string
	Retry    time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s circuit is open, next probe in %s", e.Provider, e.Retry.Round(time.Second))
}

// Breaker tracks one provider.
type Breaker struct {
	provider string
	config   Config
	now      func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// New creates a closed breaker for provider.
func New(provider string, config Config) *Breaker {
	return &Breaker{provider: provider, config: config.WithDefaults(), now: time.Now}
}

// Allow reports whether a request may proceed. An open breaker whose
// cool-down has passed moves to half-open and lets the request through.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Open {
		return nil
	}
	elapsed := b.now().Sub(b.openedAt)
	if elapsed >= b.config.OpenTimeout {
		b.state = HalfOpen
		b.successes = 0
		return nil
	}
	return &Error{Provider: b.provider, Retry: b.config.OpenTimeout - elapsed}
}

// Record feeds the outcome of a request that Allow let through.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.failures = 0
		if b.state == HalfOpen {
			b.successes++
			if b.successes >= b.config.SuccessThreshold {
				b.state = Closed
			}
		}
		return
	}

	b.failures++
	if b.state == HalfOpen || b.failures >= b.config.FailureThreshold {
		b.state = Open
		b.openedAt = b.now()
		b.successes = 0
	}
}

// State returns the current state without advancing it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Set holds one breaker per provider, created on first use.
type Set struct {
	config Config

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewSet creates an empty set.
func NewSet(config Config) *Set {
	return &Set{config: config.WithDefaults(), breakers: make(map[string]*Breaker)}
}

// For returns provider's breaker.
func (s *Set) For(provider string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[provider]
	if !ok {
		b = New(provider, s.config)
		s.breakers[provider] = b
	}
	return b
}

// States reports every known provider's state.
func (s *Set) States() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.breakers))
	for name, b := range s.breakers {
		out[name] = b.State().String()
	}
	return out
}
