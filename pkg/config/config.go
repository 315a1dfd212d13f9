// Package config loads the game server configuration.
//
// Sources are applied in order: an optional .env file, the YAML (or JSON) config
// file with ${VAR} substitution, environment overrides declared with env tags,
// TOKEN_BUDGET_<TYPE> variables, and finally built-in defaults for anything
// still unset.
package config

import (
	"time"

	"dungeonmaster/pkg/agent/middleware/resilience/circuit"
	"dungeonmaster/pkg/agent/middleware/resilience/ratelimit"
	"dungeonmaster/pkg/agent/middleware/resilience/retry"
)

// Provider names accepted in model configuration.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// DefaultModelKey is the models entry used by consumers without their own.
const DefaultModelKey = "default"

// Consumers that are not routing intents.
const (
	ConsumerRouter         = "router"
	ConsumerSessionPlanner = "session_planner"
	ConsumerSessionSummary = "session_summary"
)

// Defaults.
const (
	DefaultAddr            = ":8080"
	DefaultDatabasePath    = "dungeonmaster.db"
	DefaultEventLogDir     = "logs/events"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultRequestTimeout  = 90 * time.Second
	DefaultRecapMaxTurns   = 3
	DefaultRecapMaxWords   = 200
	DefaultOllamaHost      = "http://localhost:11434"
	DefaultOllamaModel     = "llama3.1:8b"
	DefaultDepartureRatio  = 0.5
)

// DefaultOllamaConcurrency caps parallel generations on a local model.
const DefaultOllamaConcurrency = 2

// Config is the complete server configuration.
type Config struct {
	Server       ServerConfig                `yaml:"server"`
	Database     DatabaseConfig              `yaml:"database"`
	Logging      LoggingConfig               `yaml:"logging"`
	EventLog     EventLogConfig              `yaml:"event_log"`
	Providers    ProvidersConfig             `yaml:"providers"`
	Models       map[string]ModelConfig      `yaml:"models"`
	TokenBudgets map[string]int              `yaml:"token_budgets"`
	Recap        RecapConfig                 `yaml:"recap"`
	Retry        retry.Config                `yaml:"retry"`
	Circuit      circuit.Config              `yaml:"circuit"`
	RateLimits   map[string]ratelimit.Config `yaml:"rate_limits"` // keyed by provider
	Combat       CombatConfig                `yaml:"combat"`
	Prompts      PromptsConfig               `yaml:"prompts"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"DM_ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"DM_SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"DM_REQUEST_TIMEOUT"`
}

// DatabaseConfig locates the sqlite database.
type DatabaseConfig struct {
	Path string `yaml:"path" env:"DM_DB_PATH"`
}

// LoggingConfig maps onto logx.Options.
type LoggingConfig struct {
	Level       string   `yaml:"level" env:"DM_LOG_LEVEL"`
	Development bool     `yaml:"development" env:"DM_LOG_DEV"`
	File        string   `yaml:"file" env:"DM_LOG_FILE"`
	Domains     []string `yaml:"debug_domains" env:"DEBUG_DOMAINS" envSeparator:","`
}

// EventLogConfig controls the JSONL event log.
type EventLogConfig struct {
	Dir         string `yaml:"dir" env:"DM_EVENT_LOG_DIR"`
	EvalLogging bool   `yaml:"eval_logging" env:"EVAL_LOGGING_ENABLED"`
}

// ProvidersConfig holds credentials and endpoints per provider.
type ProvidersConfig struct {
	AnthropicAPIKey string `yaml:"anthropic_api_key" env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `yaml:"openai_api_key" env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `yaml:"openai_base_url" env:"OPENAI_BASE_URL"`
	GoogleAPIKey    string `yaml:"google_api_key" env:"GEMINI_API_KEY"`
	OllamaHost      string `yaml:"ollama_host" env:"OLLAMA_HOST"`
}

// ModelConfig selects the model serving one consumer.
type ModelConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	// Temperature is optional; nil means the consumer's default.
	Temperature *float32 `yaml:"temperature"`
}

// RecapConfig bounds the recent-turns recap.
type RecapConfig struct {
	MaxTurns int `yaml:"max_turns" env:"DM_RECAP_MAX_TURNS"`
	MaxWords int `yaml:"max_words" env:"DM_RECAP_MAX_WORDS"`
}

// CombatConfig tunes combat readiness.
type CombatConfig struct {
	DepartureRatio float64 `yaml:"departure_ratio" env:"DM_COMBAT_DEPARTURE_RATIO"`
}

// PromptsConfig points at optional prompt overrides.
type PromptsConfig struct {
	Dir string `yaml:"dir" env:"DM_PROMPTS_DIR"`
}

// ModelFor returns the model serving consumer, falling back to the default entry.
func (c *Config) ModelFor(consumer string) (ModelConfig, bool) {
	if m, ok := c.Models[consumer]; ok {
		return m, true
	}
	m, ok := c.Models[DefaultModelKey]
	return m, ok
}

// APIKey returns the credential for provider. Ollama needs none.
func (c *Config) APIKey(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return c.Providers.AnthropicAPIKey
	case ProviderOpenAI:
		return c.Providers.OpenAIAPIKey
	case ProviderGoogle:
		return c.Providers.GoogleAPIKey
	default:
		return ""
	}
}
