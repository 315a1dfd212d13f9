package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dungeonmaster/pkg/agent/llm"
	"dungeonmaster/pkg/agent/llmerrors"
)

func TestNewOllamaClientWithModel(t *testing.T) {
	tests := []struct {
		name     string
		hostURL  string
		model    string
		wantHost string
	}{
		{"valid host and model", "http://localhost:11434", "phi4:latest", "http://localhost:11434"},
		{"custom host", "http://192.168.1.100:11434", "llama3.1:8b", "http://192.168.1.100:11434"},
		{"invalid URL falls back to default", "not-a-valid-url", "mistral:7b", DefaultHost},
		{"empty URL falls back to default", "", "mistral:7b", DefaultHost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewOllamaClientWithModel(tt.hostURL, tt.model)
			require.NotNil(t, client)
			assert.Equal(t, tt.model, client.GetModelName())
			assert.Equal(t, tt.wantHost, client.(*Client).hostURL)
		})
	}
}

func TestConvertMessagesToOllama(t *testing.T) {
	_, err := convertMessagesToOllama(nil)
	require.Error(t, err)

	msgs, err := convertMessagesToOllama([]llm.CompletionMessage{
		llm.NewSystemMessage("You narrate."),
		llm.NewUserMessage("I enter the tavern."),
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "user", msgs[1].Role)
	assert.Equal(t, "I enter the tavern.", msgs[1].Content)
}

func TestGetStopReason(t *testing.T) {
	tests := []struct {
		resp api.ChatResponse
		want string
	}{
		{api.ChatResponse{Done: false}, "incomplete"},
		{api.ChatResponse{Done: true, DoneReason: "stop"}, "end_turn"},
		{api.ChatResponse{Done: true}, "end_turn"},
		{api.ChatResponse{Done: true, DoneReason: "length"}, "max_tokens"},
		{api.ChatResponse{Done: true, DoneReason: "load"}, "load"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, getStopReason(&tt.resp))
	}
}

func TestClassifyError(t *testing.T) {
	err := classifyError(api.StatusError{StatusCode: http.StatusServiceUnavailable, ErrorMessage: "loading model"})
	assert.Equal(t, llmerrors.ErrorTypeTransient, llmerrors.TypeOf(err))
	assert.True(t, llmerrors.IsTransient(err))

	err = classifyError(api.StatusError{StatusCode: http.StatusNotFound, ErrorMessage: "model not found"})
	assert.Equal(t, llmerrors.ErrorTypeNotFound, llmerrors.TypeOf(err))
	assert.False(t, llmerrors.IsTransient(err))

	err = classifyError(errors.New("dial tcp: connection refused"))
	assert.True(t, llmerrors.IsTransient(err))

	err = classifyError(fmt.Errorf("chat: %w", context.Canceled))
	assert.False(t, llmerrors.IsTransient(err))
}
