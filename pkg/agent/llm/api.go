// Package llm provides interfaces and types for Large Language Model client implementations.
package llm

import (
	"context"
	"fmt"
)

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem CompletionRole = "system"
	// RoleUser indicates a message from the player-facing side of the conversation.
	RoleUser CompletionRole = "user"
	// RoleAssistant indicates a message produced by the model.
	RoleAssistant CompletionRole = "assistant"
)

const (
	// DefaultMaxTokens bounds a single completion when the caller does not set one.
	DefaultMaxTokens = 2048

	// TemperatureDefault is the default temperature for narration.
	TemperatureDefault = 0.7

	// TemperatureDeterministic is used for classification and structured planning.
	TemperatureDeterministic = 0.2
)

// CompletionMessage represents a message in a completion request.
type CompletionMessage struct {
	Content string
	Role    CompletionRole
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Messages    []CompletionMessage
	MaxTokens   int
	Temperature float32
	// JSONOutput asks providers that support it for a JSON object response.
	JSONOutput bool
}

// Usage reports token accounting returned by the provider, when available.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// CompletionResponse is the one result shape every provider returns.
// Content is the canonical text accessor.
type CompletionResponse struct {
	Content    string
	StopReason string
	Usage      Usage
}

// LLMClient defines the interface for language model interactions.
type LLMClient interface { //nolint:revive // Keep name for backward compatibility
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// GetModelName returns the model name for this LLM client.
	GetModelName() string
}

// NewCompletionRequest creates a new completion request with default values.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: TemperatureDefault,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleSystem,
		Content: content,
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleUser,
		Content: content,
	}
}

// SplitSystem separates system messages from the conversation, joining them in order.
// Providers with a dedicated system field use this.
func SplitSystem(messages []CompletionMessage) (system string, rest []CompletionMessage) {
	for i := range messages {
		if messages[i].Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += messages[i].Content
			continue
		}
		rest = append(rest, messages[i])
	}
	return system, rest
}

// LLMConfig represents configuration for an LLM client.
type LLMConfig struct { //nolint:revive // Keep name for backward compatibility
	Provider    string
	APIKey      string
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
}

// Validate validates the LLM configuration.
func (c *LLMConfig) Validate() error {
	if c.ModelName == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	return nil
}
