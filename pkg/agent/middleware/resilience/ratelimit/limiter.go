// Package ratelimit keeps requests to a model provider under its token rate
// and concurrency limits.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dungeonmaster/pkg/logx"
)

// Config defines rate limiting for one provider. Zero fields are unlimited.
type Config struct {
	TokensPerMinute int `yaml:"tokens_per_minute"`
	MaxConcurrency  int `yaml:"max_concurrency"`
}

// Stats is a point-in-time view of a limiter.
type Stats struct {
	Provider        string `json:"provider"`
	AvailableTokens int    `json:"available_tokens"`
	ActiveRequests  int    `json:"active_requests"`
	MaxConcurrency  int    `json:"max_concurrency"`
	TokenWaits      int64  `json:"token_waits"`
	SlotWaits       int64  `json:"slot_waits"`
}

// Limiter is a continuously refilling token bucket plus a concurrency semaphore.
//
//nolint:govet // fieldalignment: grouped by concern
type Limiter struct {
	provider string
	perMin   float64
	slots    chan struct{}
	now      func() time.Time
	logger   *logx.Logger

	mu         sync.Mutex
	tokens     float64
	last       time.Time
	tokenWaits int64
	slotWaits  int64
}

// New creates a limiter for provider starting with a full bucket.
func New(provider string, cfg Config) *Limiter {
	l := &Limiter{
		provider: provider,
		perMin:   float64(cfg.TokensPerMinute),
		now:      time.Now,
		logger:   logx.NewLogger("ratelimit"),
	}
	if cfg.MaxConcurrency > 0 {
		l.slots = make(chan struct{}, cfg.MaxConcurrency)
	}
	l.tokens = l.perMin
	l.last = l.now()
	return l
}

// Acquire blocks until a concurrency slot and tokens are available. The
// release func returns the slot; tokens are spent. Requests larger than the
// whole bucket wait for a full bucket.
func (l *Limiter) Acquire(ctx context.Context, tokens int) (func(), error) {
	release := func() {}
	if l.slots != nil {
		select {
		case l.slots <- struct{}{}:
		default:
			l.mu.Lock()
			l.slotWaits++
			l.mu.Unlock()
			l.logger.Info("%s concurrency limit hit, waiting for a slot", l.provider)
			select {
			case l.slots <- struct{}{}:
			case <-ctx.Done():
				return nil, ctx.Err() //nolint:wrapcheck // Context error propagated as-is
			}
		}
		release = func() { <-l.slots }
	}

	if err := l.takeTokens(ctx, tokens); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

func (l *Limiter) takeTokens(ctx context.Context, tokens int) error {
	if l.perMin <= 0 {
		return nil
	}
	need := min(float64(tokens), l.perMin)

	waited := false
	for {
		l.mu.Lock()
		l.refill()
		if l.tokens >= need {
			l.tokens -= need
			l.mu.Unlock()
			return nil
		}
		deficit := need - l.tokens
		if !waited {
			l.tokenWaits++
			waited = true
			l.logger.Info("%s token limit hit, need %d have %d", l.provider, int(need), int(l.tokens))
		}
		l.mu.Unlock()

		delay := time.Duration(deficit / l.perMin * float64(time.Minute))
		timer := time.NewTimer(max(delay, 10*time.Millisecond))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s rate limit wait: %w", l.provider, ctx.Err())
		case <-timer.C:
		}
	}
}

// refill must be called with mu held.
func (l *Limiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.last)
	l.last = now
	if elapsed <= 0 {
		return
	}
	l.tokens = min(l.perMin, l.tokens+elapsed.Minutes()*l.perMin)
}

// Stats returns current limiter statistics.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return Stats{
		Provider:        l.provider,
		AvailableTokens: int(l.tokens),
		ActiveRequests:  len(l.slots),
		MaxConcurrency:  cap(l.slots),
		TokenWaits:      l.tokenWaits,
		SlotWaits:       l.slotWaits,
	}
}

// Set holds the limiters for every configured provider.
type Set struct {
	limiters map[string]*Limiter
}

// NewSet creates limiters for each provider with a non-zero config.
func NewSet(configs map[string]Config) *Set {
	s := &Set{limiters: make(map[string]*Limiter, len(configs))}
	for provider, cfg := range configs {
		if cfg.TokensPerMinute <= 0 && cfg.MaxConcurrency <= 0 {
			continue
		}
		s.limiters[provider] = New(provider, cfg)
	}
	return s
}

// For returns provider's limiter, or nil when it is unlimited.
func (s *Set) For(provider string) *Limiter {
	return s.limiters[provider]
}

// Stats returns statistics for every limited provider.
func (s *Set) Stats() map[string]Stats {
	out := make(map[string]Stats, len(s.limiters))
	for provider, l := range s.limiters {
		out[provider] = l.Stats()
	}
	return out
}
