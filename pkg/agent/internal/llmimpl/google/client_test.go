package google

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"dungeonmaster/pkg/agent/llm"
	"dungeonmaster/pkg/agent/llmerrors"
)

func TestNewGeminiClientWithModel(t *testing.T) {
	assert.Equal(t, "gemini-2.5-pro", NewGeminiClientWithModel("test-key", "gemini-2.5-pro").GetModelName())
	assert.Equal(t, DefaultModel, NewGeminiClientWithModel("test-key", "").GetModelName())
}

func TestConvertMessagesToGemini(t *testing.T) {
	tests := []struct {
		name        string
		messages    []llm.CompletionMessage
		wantSystem  string
		wantRoles   []string
		errContains string
	}{
		{
			name:        "empty messages",
			errContains: "message list cannot be empty",
		},
		{
			name: "system extracted",
			messages: []llm.CompletionMessage{
				llm.NewSystemMessage("You are the DM."),
				llm.NewSystemMessage("Be brief."),
				llm.NewUserMessage("Hello"),
			},
			wantSystem: "You are the DM.\n\nBe brief.",
			wantRoles:  []string{"user"},
		},
		{
			name: "assistant becomes model",
			messages: []llm.CompletionMessage{
				llm.NewUserMessage("Hi"),
				{Role: llm.RoleAssistant, Content: "Welcome, traveller."},
				llm.NewUserMessage("Where am I?"),
			},
			wantRoles: []string{"user", "model", "user"},
		},
		{
			name:        "only system",
			messages:    []llm.CompletionMessage{llm.NewSystemMessage("rules")},
			errContains: "at least one non-system message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contents, system, err := convertMessagesToGemini(tt.messages)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSystem, system)
			roles := make([]string, len(contents))
			for i, c := range contents {
				roles[i] = c.Role
			}
			assert.Equal(t, tt.wantRoles, roles)
		})
	}
}

func TestGetStopReason(t *testing.T) {
	assert.Equal(t, "unknown", getStopReason(nil))
	assert.Equal(t, "end_turn", getStopReason(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonStop}},
	}))
	assert.Equal(t, "max_tokens", getStopReason(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonMaxTokens}},
	}))
}

func TestClassifyError(t *testing.T) {
	err := classifyError(genai.APIError{Code: 429, Message: "Resource exhausted", Status: "RESOURCE_EXHAUSTED"})
	assert.Equal(t, llmerrors.ErrorTypeRateLimit, llmerrors.TypeOf(err))

	err = classifyError(genai.APIError{Code: 400, Message: "bad", Status: "INVALID_ARGUMENT"})
	assert.Equal(t, llmerrors.ErrorTypeBadPrompt, llmerrors.TypeOf(err))
}
