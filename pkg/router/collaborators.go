package router

import (
	"context"
	"fmt"

	"dungeonmaster/pkg/agent/llm"
)

// Classifier labels player input with an intent.
type Classifier interface {
	Classify(ctx context.Context, prompt string) (ClassifierOutput, error)
}

// Responder turns a prepared context into raw generated text.
type Responder interface {
	Generate(ctx context.Context, input string) (string, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, prompt string) (ClassifierOutput, error)

// Classify calls f.
func (f ClassifierFunc) Classify(ctx context.Context, prompt string) (ClassifierOutput, error) {
	return f(ctx, prompt)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, input string) (string, error)

// Generate calls f.
func (f ResponderFunc) Generate(ctx context.Context, input string) (string, error) {
	return f(ctx, input)
}

// LLMResponder is a Responder backed by a model client and a system prompt.
type LLMResponder struct {
	client      llm.LLMClient
	system      string
	maxTokens   int
	temperature float32
}

// NewLLMResponder creates a responder. Zero maxTokens uses the client default.
func NewLLMResponder(client llm.LLMClient, system string, maxTokens int, temperature float32) *LLMResponder {
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}
	return &LLMResponder{client: client, system: system, maxTokens: maxTokens, temperature: temperature}
}

// Generate sends the system prompt and input and returns the response text.
func (r *LLMResponder) Generate(ctx context.Context, input string) (string, error) {
	messages := make([]llm.CompletionMessage, 0, 2)
	if r.system != "" {
		messages = append(messages, llm.NewSystemMessage(r.system))
	}
	messages = append(messages, llm.NewUserMessage(input))

	req := llm.NewCompletionRequest(messages)
	req.MaxTokens = r.maxTokens
	req.Temperature = r.temperature

	resp, err := r.client.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", r.client.GetModelName(), err)
	}
	return resp.Content, nil
}

// LLMClassifier asks a model for a JSON intent object.
type LLMClassifier struct {
	client llm.LLMClient
	system string
}

// NewLLMClassifier creates a classifier.
func NewLLMClassifier(client llm.LLMClient, system string) *LLMClassifier {
	return &LLMClassifier{client: client, system: system}
}

// Classify returns the raw model text. Resolve parses it.
func (c *LLMClassifier) Classify(ctx context.Context, prompt string) (ClassifierOutput, error) {
	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(c.system),
		llm.NewUserMessage(prompt),
	})
	req.MaxTokens = 256
	req.Temperature = llm.TemperatureDeterministic
	req.JSONOutput = true

	resp, err := c.client.Complete(ctx, req)
	if err != nil {
		return ClassifierOutput{}, fmt.Errorf("%s: %w", c.client.GetModelName(), err)
	}
	return RawText(resp.Content), nil
}
