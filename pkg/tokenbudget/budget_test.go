package tokenbudget

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudgetTable(t *testing.T) {
	e := NewEnforcer(nil, 0)

	assert.Equal(t, 1000, e.Budget("router"))
	assert.Equal(t, 8000, e.Budget("combat_designer"))
	assert.Equal(t, 7000, e.Budget("gameplay"))
	assert.Equal(t, DefaultBudget, e.Budget("bard_song"))
}

func TestBudgetOverridesLayer(t *testing.T) {
	env := EnvOverrides([]string{
		"TOKEN_BUDGET_ROUTER=500",
		"TOKEN_BUDGET_QA_RULES=oops",
		"TOKEN_BUDGET_TRAVEL=-3",
		"PATH=/usr/bin",
	})
	assert.Equal(t, map[string]int{"router": 500}, env)

	e := NewEnforcer(nil, 4000, map[string]int{"router": 800, "travel": 2000}, env)
	assert.Equal(t, 500, e.Budget("router"), "later layers win")
	assert.Equal(t, 2000, e.Budget("travel"))
	assert.Equal(t, 4000, e.Budget("unknown"))
}

func TestEnforceWithinBudget(t *testing.T) {
	e := NewEnforcer(nil, 0)
	text := "The goblin snarls."

	out, md := e.Enforce("router", text)

	assert.Equal(t, text, out)
	assert.False(t, md.Trimmed)
	assert.Equal(t, md.OriginalTokens, md.FinalTokens)
	assert.Equal(t, 0, md.OverBudgetBy)
	assert.Equal(t, 1000, md.Budget)
}

func TestEnforceTrimsKeepingEnd(t *testing.T) {
	e := NewEnforcer(nil, 0, map[string]int{"router": 20})
	text := strings.Repeat("old history line. ", 50) + "Player: I draw my sword."

	out, md := e.Enforce("router", text)

	require.True(t, md.Trimmed)
	assert.LessOrEqual(t, md.FinalTokens, 20)
	assert.Greater(t, md.OriginalTokens, 20)
	assert.Equal(t, md.OriginalTokens-20, md.OverBudgetBy)
	assert.True(t, strings.HasSuffix(out, "I draw my sword."))
}

func TestEnforceIsIdempotent(t *testing.T) {
	e := NewEnforcer(nil, 0, map[string]int{"npc_dialogue": 37})
	inputs := []string{
		"",
		"short",
		strings.Repeat("The innkeeper polishes a tankard and eyes you warily. ", 40),
		strings.Repeat("Dragons 🐉 and élan, naïve café déjà vu. ", 30),
	}

	for _, in := range inputs {
		once, _ := e.Enforce("npc_dialogue", in)
		twice, md := e.Enforce("npc_dialogue", once)
		assert.Equal(t, once, twice)
		assert.False(t, md.Trimmed)
	}
}

func TestTrimPreserveStart(t *testing.T) {
	c := DefaultCounter()
	text := "alpha beta gamma delta epsilon zeta eta theta"

	head := c.Trim(text, 3, false)
	assert.True(t, strings.HasPrefix(text, head))
	assert.LessOrEqual(t, c.Count(head), 3)
	assert.Equal(t, "", c.Trim(text, 0, true))
}

func TestCountDeterministic(t *testing.T) {
	c := DefaultCounter()
	text := "You enter the crypt. Cold air curls around your ankles."
	assert.Equal(t, c.Count(text), c.Count(text))
	assert.Equal(t, 0, c.Count(""))
}
