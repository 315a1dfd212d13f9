// Package openaiofficial provides the OpenAI implementation of llm.LLMClient using
// the official OpenAI Go package and the Responses API.
package openaiofficial

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"dungeonmaster/pkg/agent/llm"
	"dungeonmaster/pkg/agent/llmerrors"
)

const provider = "openai"

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// OfficialClient wraps the official OpenAI Go client.
type OfficialClient struct {
	client openai.Client
	model  string
}

// NewOfficialClientWithModel creates a raw OpenAI client; middleware is applied by the factory.
// baseURL may point at any OpenAI-compatible endpoint.
func NewOfficialClientWithModel(apiKey, baseURL, model string) llm.LLMClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = DefaultModel
	}
	return &OfficialClient{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// flattenInput joins system text into instructions and the remaining turns into one input string.
func flattenInput(messages []llm.CompletionMessage) (instructions, input string) {
	system, rest := llm.SplitSystem(messages)
	var sb strings.Builder
	for i := range rest {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		if rest[i].Role == llm.RoleAssistant {
			sb.WriteString("Assistant: ")
		}
		sb.WriteString(rest[i].Content)
	}
	return system, sb.String()
}

// Complete implements llm.LLMClient.
//
//nolint:gocritic // CompletionRequest passed by value to match interface
func (o *OfficialClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	instructions, input := flattenInput(in.Messages)
	if strings.TrimSpace(input) == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "request has no input text")
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}
	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(maxTokens)),
		Temperature:     openai.Float(float64(in.Temperature)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
	}
	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from OpenAI Responses API")
	}

	return llm.CompletionResponse{
		Content:    resp.OutputText(),
		StopReason: string(resp.Status),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// GetModelName returns the model name for this client.
func (o *OfficialClient) GetModelName() string {
	return o.model
}

func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		return llmerrors.FromStatus(provider, apiErr.StatusCode, err)
	}
	return llmerrors.Classify(provider, err)
}
