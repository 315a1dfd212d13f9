package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate checks a fully defaulted configuration.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, fmt.Errorf("server.addr cannot be empty"))
	}
	if c.Server.ShutdownTimeout < 0 || c.Server.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("server timeouts cannot be negative"))
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, fmt.Errorf("database.path cannot be empty"))
	}

	if _, ok := c.Models[DefaultModelKey]; !ok {
		errs = append(errs, fmt.Errorf("models.%s is required", DefaultModelKey))
	}
	consumers := make([]string, 0, len(c.Models))
	for name := range c.Models {
		consumers = append(consumers, name)
	}
	sort.Strings(consumers)
	for _, name := range consumers {
		if err := c.validateModel(name, c.Models[name]); err != nil {
			errs = append(errs, err)
		}
	}

	for consumer, budget := range c.TokenBudgets {
		if budget <= 0 {
			errs = append(errs, fmt.Errorf("token_budgets.%s must be positive, got %d", consumer, budget))
		}
	}

	if c.Recap.MaxTurns < 1 {
		errs = append(errs, fmt.Errorf("recap.max_turns must be at least 1"))
	}
	if c.Recap.MaxWords < 1 {
		errs = append(errs, fmt.Errorf("recap.max_words must be at least 1"))
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1"))
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, fmt.Errorf("retry delays must satisfy 0 <= base_delay <= max_delay"))
	}

	for provider, rl := range c.RateLimits {
		if rl.TokensPerMinute < 0 || rl.MaxConcurrency < 0 {
			errs = append(errs, fmt.Errorf("rate_limits.%s cannot be negative", provider))
		}
	}

	if c.Combat.DepartureRatio <= 0 || c.Combat.DepartureRatio >= 1 {
		errs = append(errs, fmt.Errorf("combat.departure_ratio must be in (0, 1), got %v", c.Combat.DepartureRatio))
	}

	return errors.Join(errs...)
}

func (c *Config) validateModel(consumer string, m ModelConfig) error {
	switch m.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle:
		if c.APIKey(m.Provider) == "" {
			return fmt.Errorf("models.%s: provider %s requires an API key", consumer, m.Provider)
		}
	case ProviderOllama:
	default:
		return fmt.Errorf("models.%s: unknown provider %q", consumer, m.Provider)
	}
	if m.Model == "" && m.Provider == ProviderOllama {
		return fmt.Errorf("models.%s: model is required for ollama", consumer)
	}
	if m.MaxTokens < 0 {
		return fmt.Errorf("models.%s: max_tokens cannot be negative", consumer)
	}
	if m.Temperature != nil && (*m.Temperature < 0 || *m.Temperature > 2) {
		return fmt.Errorf("models.%s: temperature must be between 0.0 and 2.0", consumer)
	}
	return nil
}
