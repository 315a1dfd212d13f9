// Package agent builds model clients for each game consumer with the standard
// middleware chain.
package agent

import (
	"fmt"
	"time"

	"dungeonmaster/pkg/agent/internal/llmimpl/anthropic"
	"dungeonmaster/pkg/agent/internal/llmimpl/google"
	"dungeonmaster/pkg/agent/internal/llmimpl/ollama"
	"dungeonmaster/pkg/agent/internal/llmimpl/openaiofficial"
	"dungeonmaster/pkg/agent/llm"
	"dungeonmaster/pkg/agent/middleware/logging"
	"dungeonmaster/pkg/agent/middleware/metrics"
	"dungeonmaster/pkg/agent/middleware/resilience/circuit"
	"dungeonmaster/pkg/agent/middleware/resilience/ratelimit"
	"dungeonmaster/pkg/agent/middleware/resilience/timeout"
	"dungeonmaster/pkg/agent/middleware/validation"
	"dungeonmaster/pkg/config"
	"dungeonmaster/pkg/logx"
	"dungeonmaster/pkg/tokenbudget"
)

// RawClientFunc constructs an unwrapped provider client.
type RawClientFunc func(cfg *config.Config, model config.ModelConfig) (llm.LLMClient, error)

// LLMClientFactory creates LLM clients with properly configured middleware chains.
// Breakers and limiters are per provider and shared by every consumer.
type LLMClientFactory struct {
	config   *config.Config
	recorder metrics.Recorder
	logger   *logx.Logger
	newRaw   RawClientFunc
	breakers *circuit.Set
	limits   *ratelimit.Set
}

// NewLLMClientFactory creates a factory. A nil recorder disables metrics.
func NewLLMClientFactory(cfg *config.Config, recorder metrics.Recorder) *LLMClientFactory {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &LLMClientFactory{
		config:   cfg,
		recorder: recorder,
		logger:   logx.NewLogger("llm"),
		newRaw:   NewRawClient,
		breakers: circuit.NewSet(cfg.Circuit),
		limits:   ratelimit.NewSet(cfg.RateLimits),
	}
}

// WithRawClient replaces provider construction, for tests and offline runs.
func (f *LLMClientFactory) WithRawClient(fn RawClientFunc) *LLMClientFactory {
	f.newRaw = fn
	return f
}

// Settings returns the generation settings for consumer. fallbackTemp applies
// when the model entry leaves temperature unset.
func (f *LLMClientFactory) Settings(consumer string, fallbackTemp float32) (maxTokens int, temperature float32) {
	m, _ := f.config.ModelFor(consumer)
	maxTokens = m.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}
	temperature = fallbackTemp
	if m.Temperature != nil {
		temperature = *m.Temperature
	}
	return maxTokens, temperature
}

// CreateClient returns the client serving consumer. extra middleware is
// placed between validation and the timeout, so a retry middleware retries
// each attempt under its own deadline.
//
// Chain: Metrics -> Logging -> EmptyResponse -> extra... -> Circuit -> RateLimit -> Timeout -> raw client.
func (f *LLMClientFactory) CreateClient(consumer string, extra ...llm.Middleware) (llm.LLMClient, error) {
	m, ok := f.config.ModelFor(consumer)
	if !ok {
		return nil, fmt.Errorf("no model configured for %s", consumer)
	}

	raw, err := f.newRaw(f.config, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client for %s: %w", m.Provider, consumer, err)
	}

	chain := []llm.Middleware{
		metrics.Middleware(f.recorder, m.Provider, consumer, nil),
		logging.Middleware(consumer, f.logger),
		validation.EmptyResponseMiddleware(),
	}
	chain = append(chain, extra...)
	chain = append(chain, circuit.Middleware(f.breakers.For(m.Provider)))
	if l := f.limits.For(m.Provider); l != nil {
		chain = append(chain, ratelimit.Middleware(l, tokenbudget.DefaultCounter()))
	}
	chain = append(chain, timeout.Middleware(f.requestTimeout()))

	f.logger.Info("%s -> %s/%s", consumer, m.Provider, raw.GetModelName())
	return llm.Chain(raw, chain...), nil
}

// Health reports provider circuit states and rate limiter statistics.
func (f *LLMClientFactory) Health() map[string]any {
	return map[string]any{
		"circuits":    f.breakers.States(),
		"rate_limits": f.limits.Stats(),
	}
}

func (f *LLMClientFactory) requestTimeout() time.Duration {
	return f.config.Server.RequestTimeout
}

// NewRawClient constructs the provider client for model.
func NewRawClient(cfg *config.Config, model config.ModelConfig) (llm.LLMClient, error) {
	switch model.Provider {
	case config.ProviderAnthropic:
		return anthropic.NewClaudeClientWithModel(cfg.APIKey(model.Provider), "", model.Model), nil
	case config.ProviderOpenAI:
		return openaiofficial.NewOfficialClientWithModel(cfg.APIKey(model.Provider), cfg.Providers.OpenAIBaseURL, model.Model), nil
	case config.ProviderGoogle:
		return google.NewGeminiClientWithModel(cfg.APIKey(model.Provider), model.Model), nil
	case config.ProviderOllama:
		return ollama.NewOllamaClientWithModel(cfg.Providers.OllamaHost, model.Model), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", model.Provider)
	}
}
