package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dungeonmaster/pkg/agent/llm"
	"dungeonmaster/pkg/agent/llmerrors"
)

func stub(content string) llm.LLMClient {
	return llm.WrapClient(
		func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
			return llm.CompletionResponse{Content: content, StopReason: "end_turn"}, nil
		},
		func() string { return "stub" },
	)
}

func TestEmptyResponseBecomesTypedError(t *testing.T) {
	_, err := EmptyResponseMiddleware()(stub("  \n")).Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse))
	assert.True(t, llmerrors.IsTransient(err))
}

func TestNonEmptyResponsePassesThrough(t *testing.T) {
	resp, err := EmptyResponseMiddleware()(stub("The tavern is quiet.")).Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "The tavern is quiet.", resp.Content)
}
