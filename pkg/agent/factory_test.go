package agent

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dungeonmaster/internal/mocks"
	"dungeonmaster/pkg/agent/llm"
	"dungeonmaster/pkg/agent/llmerrors"
	"dungeonmaster/pkg/agent/middleware/metrics"
	"dungeonmaster/pkg/agent/middleware/resilience/circuit"
	"dungeonmaster/pkg/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	temp := float32(0.1)
	cfg.Models[config.ConsumerRouter] = config.ModelConfig{Provider: config.ProviderOllama, Model: "phi4", MaxTokens: 128, Temperature: &temp}
	return cfg
}

func TestNewRawClientProviders(t *testing.T) {
	cfg := config.Default()
	cfg.Providers.AnthropicAPIKey = "a"
	cfg.Providers.OpenAIAPIKey = "o"
	cfg.Providers.GoogleAPIKey = "g"

	for _, provider := range []string{config.ProviderAnthropic, config.ProviderOpenAI, config.ProviderGoogle, config.ProviderOllama} {
		t.Run(provider, func(t *testing.T) {
			client, err := NewRawClient(cfg, config.ModelConfig{Provider: provider, Model: "m-" + provider})
			require.NoError(t, err)
			assert.Equal(t, "m-"+provider, client.GetModelName())
		})
	}

	_, err := NewRawClient(cfg, config.ModelConfig{Provider: "bedrock"})
	assert.Error(t, err)
}

func TestSettings(t *testing.T) {
	f := NewLLMClientFactory(testConfig(), nil)

	maxTokens, temp := f.Settings(config.ConsumerRouter, 0.7)
	assert.Equal(t, 128, maxTokens)
	assert.InDelta(t, 0.1, temp, 1e-6)

	maxTokens, temp = f.Settings("narrative_long", 0.7)
	assert.Equal(t, llm.DefaultMaxTokens, maxTokens)
	assert.InDelta(t, 0.7, temp, 1e-6)
}

func TestCreateClientAppliesChain(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(reg)
	mock := mocks.NewMockLLMClient()
	mock.RespondWith("   ")

	f := NewLLMClientFactory(testConfig(), recorder).WithRawClient(func(*config.Config, config.ModelConfig) (llm.LLMClient, error) {
		return mock, nil
	})

	client, err := f.CreateClient("narrative_short")
	require.NoError(t, err)
	assert.Equal(t, "mock-model", client.GetModelName())

	_, err = client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.Error(t, err)
	assert.Equal(t, llmerrors.ErrorTypeEmptyResponse, llmerrors.TypeOf(err))

	series, err := testutil.GatherAndCount(reg, "dm_llm_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, series)
}

func TestCreateClientExtraMiddleware(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	calls := 0
	extra := func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
			calls++
			return next.Complete(ctx, req)
		}, next.GetModelName)
	}

	f := NewLLMClientFactory(testConfig(), nil).WithRawClient(func(*config.Config, config.ModelConfig) (llm.LLMClient, error) {
		return mock, nil
	})
	client, err := f.CreateClient(config.ConsumerSessionPlanner, extra)
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("plan")}))
	require.NoError(t, err)
	assert.Equal(t, "Mock response", resp.Content)
	assert.Equal(t, 1, calls)
}

func TestCircuitIsSharedPerProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Circuit = circuit.Config{FailureThreshold: 2, OpenTimeout: time.Minute}

	mock := mocks.NewMockLLMClient()
	mock.FailCompleteWith(llmerrors.NewError(llmerrors.ErrorTypeTransient, "connection refused"))
	f := NewLLMClientFactory(cfg, nil).WithRawClient(func(*config.Config, config.ModelConfig) (llm.LLMClient, error) {
		return mock, nil
	})

	narrator, err := f.CreateClient("narrative_short")
	require.NoError(t, err)
	router, err := f.CreateClient(config.ConsumerRouter)
	require.NoError(t, err)

	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")})
	for i := 0; i < 2; i++ {
		_, err = narrator.Complete(context.Background(), req)
		require.Error(t, err)
	}
	assert.Equal(t, 2, mock.GetCompleteCallCount())

	_, err = router.Complete(context.Background(), req)
	var open *circuit.Error
	require.ErrorAs(t, err, &open)
	assert.Equal(t, config.ProviderOllama, open.Provider)
	assert.Equal(t, 2, mock.GetCompleteCallCount(), "an open circuit must not reach the provider")

	health := f.Health()
	assert.Equal(t, map[string]string{config.ProviderOllama: "open"}, health["circuits"])
	assert.Contains(t, health["rate_limits"], config.ProviderOllama)
}
