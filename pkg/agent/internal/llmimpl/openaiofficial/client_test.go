package openaiofficial

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dungeonmaster/pkg/agent/llm"
)

func TestNewOfficialClientWithModel(t *testing.T) {
	client := NewOfficialClientWithModel("test-api-key", "", "gpt-4o")
	assert.Equal(t, "gpt-4o", client.GetModelName())

	var _ llm.LLMClient = client
}

func TestNewOfficialClientDefaultsModel(t *testing.T) {
	client := NewOfficialClientWithModel("test-api-key", "http://localhost:8080/v1", "")
	assert.Equal(t, DefaultModel, client.GetModelName())
}

func TestFlattenInput(t *testing.T) {
	instructions, input := flattenInput([]llm.CompletionMessage{
		llm.NewSystemMessage("You classify player input."),
		llm.NewUserMessage("Classify this player input:\n\nI attack"),
		{Role: llm.RoleAssistant, Content: `{"intent":"gameplay"}`},
		llm.NewUserMessage("Again"),
	})

	assert.Equal(t, "You classify player input.", instructions)
	assert.Equal(t, "Classify this player input:\n\nI attack\n\nAssistant: {\"intent\":\"gameplay\"}\n\nAgain", input)
}
