package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"dungeonmaster/pkg/agent/middleware/resilience/ratelimit"
	"dungeonmaster/pkg/agent/middleware/resilience/retry"
	"dungeonmaster/pkg/tokenbudget"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads configuration from path. An empty path skips the file and uses
// environment and defaults only. A .env file in the working directory is
// loaded first when present; variables already set are not overwritten.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg, os.Environ()); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Parse substitutes ${VAR} placeholders and decodes YAML (or JSON) into cfg.
// Placeholders for unset variables are left as written.
func Parse(data []byte, cfg *Config) error {
	expanded := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		name := match[2 : len(match)-1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// applyEnv applies env-tagged overrides and TOKEN_BUDGET_<TYPE> variables.
func applyEnv(cfg *Config, environ []string) error {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	overrides := tokenbudget.EnvOverrides(environ)
	if len(overrides) > 0 && cfg.TokenBudgets == nil {
		cfg.TokenBudgets = make(map[string]int, len(overrides))
	}
	for consumer, budget := range overrides {
		cfg.TokenBudgets[consumer] = budget
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultDatabasePath
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.EventLog.Dir == "" {
		cfg.EventLog.Dir = DefaultEventLogDir
	}
	if cfg.Providers.OllamaHost == "" {
		cfg.Providers.OllamaHost = DefaultOllamaHost
	}

	if cfg.Models == nil {
		cfg.Models = make(map[string]ModelConfig)
	}
	if _, ok := cfg.Models[DefaultModelKey]; !ok {
		cfg.Models[DefaultModelKey] = ModelConfig{Provider: ProviderOllama, Model: DefaultOllamaModel}
	}

	if cfg.TokenBudgets == nil {
		cfg.TokenBudgets = make(map[string]int)
	}

	if cfg.Recap.MaxTurns == 0 {
		cfg.Recap.MaxTurns = DefaultRecapMaxTurns
	}
	if cfg.Recap.MaxWords == 0 {
		cfg.Recap.MaxWords = DefaultRecapMaxWords
	}

	if cfg.RateLimits == nil {
		cfg.RateLimits = make(map[string]ratelimit.Config)
	}
	if _, ok := cfg.RateLimits[ProviderOllama]; !ok {
		cfg.RateLimits[ProviderOllama] = ratelimit.Config{MaxConcurrency: DefaultOllamaConcurrency}
	}
	cfg.Circuit = cfg.Circuit.WithDefaults()

	def := retry.DefaultConfig()
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = def.MaxAttempts
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = def.BaseDelay
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = def.MaxDelay
	}

	if cfg.Combat.DepartureRatio == 0 {
		cfg.Combat.DepartureRatio = DefaultDepartureRatio
	}
}
