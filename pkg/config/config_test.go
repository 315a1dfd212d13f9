package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dungeonmaster/pkg/agent/middleware/resilience/ratelimit"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// unsetProviderEnv clears provider credentials inherited from the developer's
// shell for the duration of the test.
func unsetProviderEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "OPENAI_BASE_URL", "GEMINI_API_KEY", "OLLAMA_HOST"} {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, 3, cfg.Recap.MaxTurns)
	assert.Equal(t, 200, cfg.Recap.MaxWords)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 8*time.Second, cfg.Retry.MaxDelay)
	assert.InDelta(t, 0.5, cfg.Combat.DepartureRatio, 1e-9)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Circuit.OpenTimeout)
	assert.Equal(t, DefaultOllamaConcurrency, cfg.RateLimits[ProviderOllama].MaxConcurrency)

	m, ok := cfg.ModelFor("narrative_short")
	require.True(t, ok)
	assert.Equal(t, ProviderOllama, m.Provider)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	unsetProviderEnv(t)
	t.Setenv("TEST_DM_ANTHROPIC_KEY", "sk-ant-test")
	path := writeConfig(t, `
server:
  addr: ":9090"
  shutdown_timeout: 5s
providers:
  anthropic_api_key: ${TEST_DM_ANTHROPIC_KEY}
models:
  default:
    provider: anthropic
    model: claude-sonnet-4-5
  router:
    provider: ollama
    model: phi4:latest
    temperature: 0.1
token_budgets:
  narrative_long: 9000
retry:
  max_attempts: 5
  base_delay: 500ms
  max_delay: 4s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "sk-ant-test", cfg.APIKey(ProviderAnthropic))
	assert.Equal(t, 9000, cfg.TokenBudgets["narrative_long"])
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseDelay)

	router, _ := cfg.ModelFor(ConsumerRouter)
	assert.Equal(t, "phi4:latest", router.Model)
	require.NotNil(t, router.Temperature)
	assert.InDelta(t, 0.1, *router.Temperature, 1e-6)

	narrator, _ := cfg.ModelFor("narrative_short")
	assert.Equal(t, ProviderAnthropic, narrator.Provider)
}

func TestProviderEnvBeatsFile(t *testing.T) {
	unsetProviderEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	path := writeConfig(t, `
providers:
  anthropic_api_key: sk-ant-file
  openai_api_key: sk-openai-file
  ollama_host: http://localhost:11434
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-env", cfg.APIKey(ProviderAnthropic))
	assert.Equal(t, "http://gpu-box:11434", cfg.Providers.OllamaHost)
	assert.Equal(t, "sk-openai-file", cfg.APIKey(ProviderOpenAI), "file value stands when the variable is unset")
}

func TestLoadJSONFile(t *testing.T) {
	path := writeConfig(t, `{"server":{"addr":":7070"},"recap":{"max_turns":5}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Recap.MaxTurns)
	assert.Equal(t, DefaultRecapMaxWords, cfg.Recap.MaxWords)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("DM_ADDR", ":6060")
	t.Setenv("EVAL_LOGGING_ENABLED", "true")
	t.Setenv("TOKEN_BUDGET_ROUTER", "1500")
	t.Setenv("DEBUG_DOMAINS", "router,combat")
	path := writeConfig(t, "server:\n  addr: \":9090\"\ntoken_budgets:\n  router: 800\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":6060", cfg.Server.Addr)
	assert.True(t, cfg.EventLog.EvalLogging)
	assert.Equal(t, 1500, cfg.TokenBudgets["router"])
	assert.Equal(t, []string{"router", "combat"}, cfg.Logging.Domains)
}

func TestResilienceSections(t *testing.T) {
	t.Setenv("DM_CIRCUIT_OPEN_TIMEOUT", "45s")
	path := writeConfig(t, `
circuit:
  failure_threshold: 2
rate_limits:
  ollama:
    max_concurrency: 1
  openai:
    tokens_per_minute: 30000
    max_concurrency: 4
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Circuit.FailureThreshold)
	assert.Equal(t, 1, cfg.Circuit.SuccessThreshold)
	assert.Equal(t, 45*time.Second, cfg.Circuit.OpenTimeout)
	assert.Equal(t, 1, cfg.RateLimits[ProviderOllama].MaxConcurrency)
	assert.Equal(t, 30000, cfg.RateLimits[ProviderOpenAI].TokensPerMinute)

	cfg.RateLimits[ProviderGoogle] = ratelimit.Config{MaxConcurrency: -1}
	assert.ErrorContains(t, cfg.Validate(), "rate_limits.google cannot be negative")
}

func TestUnsetPlaceholderIsKept(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, Parse([]byte("database:\n  path: ${DM_TEST_UNSET_VARIABLE}\n"), cfg))
	assert.Equal(t, "${DM_TEST_UNSET_VARIABLE}", cfg.Database.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults valid", func(*Config) {}, ""},
		{"unknown provider", func(c *Config) {
			c.Models["travel"] = ModelConfig{Provider: "bedrock", Model: "x"}
		}, `unknown provider "bedrock"`},
		{"missing api key", func(c *Config) {
			c.Models["qa_rules"] = ModelConfig{Provider: ProviderOpenAI, Model: "gpt-4o"}
		}, "requires an API key"},
		{"bad temperature", func(c *Config) {
			temp := float32(3)
			c.Models[DefaultModelKey] = ModelConfig{Provider: ProviderOllama, Model: "m", Temperature: &temp}
		}, "temperature"},
		{"bad budget", func(c *Config) { c.TokenBudgets["router"] = 0 }, "token_budgets.router"},
		{"bad retry", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"bad ratio", func(c *Config) { c.Combat.DepartureRatio = 1 }, "departure_ratio"},
		{"bad recap", func(c *Config) { c.Recap.MaxWords = -1 }, "recap.max_words"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
