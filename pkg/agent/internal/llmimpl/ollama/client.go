// Package ollama provides the Ollama implementation of llm.LLMClient.
// Ollama runs open-weight models locally.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"dungeonmaster/pkg/agent/llm"
	"dungeonmaster/pkg/agent/llmerrors"
)

const provider = "ollama"

// DefaultHost is used when the configured host URL is empty or invalid.
const DefaultHost = "http://localhost:11434"

// Client wraps the Ollama API client.
type Client struct {
	client  *api.Client
	model   string
	hostURL string
}

// NewOllamaClientWithModel creates a raw Ollama client; middleware is applied by the factory.
func NewOllamaClientWithModel(hostURL, model string) llm.LLMClient {
	parsed, err := url.Parse(hostURL)
	if hostURL == "" || err != nil || parsed.Scheme == "" || parsed.Host == "" {
		hostURL = DefaultHost
		parsed, _ = url.Parse(DefaultHost)
	}
	return &Client{
		client:  api.NewClient(parsed, http.DefaultClient),
		model:   model,
		hostURL: hostURL,
	}
}

// Complete implements llm.LLMClient.
//
//nolint:gocritic // CompletionRequest passed by value to match interface
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages, err := convertMessagesToOllama(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}
	if in.JSONOutput {
		req.Format = json.RawMessage(`"json"`)
	}

	var response api.ChatResponse
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	return llm.CompletionResponse{
		Content:    response.Message.Content,
		StopReason: getStopReason(&response),
		Usage: llm.Usage{
			PromptTokens:     response.PromptEvalCount,
			CompletionTokens: response.EvalCount,
		},
	}, nil
}

// GetModelName returns the model name for this client.
func (o *Client) GetModelName() string {
	return o.model
}

func convertMessagesToOllama(messages []llm.CompletionMessage) ([]api.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}
	result := make([]api.Message, 0, len(messages))
	for i := range messages {
		result = append(result, api.Message{
			Role:    string(messages[i].Role),
			Content: messages[i].Content,
		})
	}
	return result, nil
}

// getStopReason converts Ollama's done_reason to the shared stop reason vocabulary.
func getStopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}
	switch resp.DoneReason {
	case "stop", "":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}

func classifyError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode != 0 {
		return llmerrors.FromStatus(provider, statusErr.StatusCode, err)
	}
	return llmerrors.Classify(provider, err)
}
