package mocks

import (
	"context"
	"strings"
	"sync"

	"dungeonmaster/pkg/agent/llm"
)

// MockLLMClient implements llm.LLMClient for testing.
//
//nolint:govet // fieldalignment: mock struct layout optimized for readability
type MockLLMClient struct {
	// CompleteFunc is called when Complete is invoked. Override to customize behavior.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error)

	// CompleteCalls tracks all calls to Complete for verification.
	CompleteCalls []llm.CompletionRequest

	modelName string

	// mu protects CompleteCalls and the sequence cursor.
	mu sync.Mutex
}

// NewMockLLMClient creates a mock that answers every call with "Mock response".
func NewMockLLMClient() *MockLLMClient {
	m := &MockLLMClient{modelName: "mock-model"}
	m.RespondWith("Mock response")
	return m
}

// Complete implements llm.LLMClient.
func (m *MockLLMClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	m.CompleteCalls = append(m.CompleteCalls, req)
	fn := m.CompleteFunc
	m.mu.Unlock()
	return fn(ctx, req)
}

// GetModelName implements llm.LLMClient.
func (m *MockLLMClient) GetModelName() string {
	return m.modelName
}

// SetModelName sets the model name returned by GetModelName.
func (m *MockLLMClient) SetModelName(name string) {
	m.modelName = name
}

// OnComplete sets a custom handler for Complete calls.
func (m *MockLLMClient) OnComplete(fn func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteFunc = fn
}

// FailCompleteWith configures Complete to return err.
func (m *MockLLMClient) FailCompleteWith(err error) {
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{}, err
	})
}

// RespondWith configures Complete to return content.
func (m *MockLLMClient) RespondWith(content string) {
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{Content: content, StopReason: "end_turn"}, nil
	})
}

// Step is one scripted outcome of RespondWithSequence.
type Step struct {
	Content string
	Err     error
}

// RespondWithSequence returns the steps in order, repeating the last one for any additional calls.
func (m *MockLLMClient) RespondWithSequence(steps ...Step) {
	next := 0
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		m.mu.Lock()
		step := steps[len(steps)-1]
		if next < len(steps) {
			step = steps[next]
			next++
		}
		m.mu.Unlock()
		if step.Err != nil {
			return llm.CompletionResponse{}, step.Err
		}
		return llm.CompletionResponse{Content: step.Content, StopReason: "end_turn"}, nil
	})
}

// Reset clears all recorded calls.
func (m *MockLLMClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteCalls = nil
}

// GetCompleteCallCount returns the number of times Complete was called.
func (m *MockLLMClient) GetCompleteCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CompleteCalls)
}

// LastCompleteCall returns the most recent Complete request, or nil if none.
func (m *MockLLMClient) LastCompleteCall() *llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.CompleteCalls) == 0 {
		return nil
	}
	return &m.CompleteCalls[len(m.CompleteCalls)-1]
}

// AssertCompleteCalledWith reports whether any recorded message contains substr.
func (m *MockLLMClient) AssertCompleteCalledWith(substr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, call := range m.CompleteCalls {
		for _, msg := range call.Messages {
			if strings.Contains(msg.Content, substr) {
				return true
			}
		}
	}
	return false
}
