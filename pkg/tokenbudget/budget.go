package tokenbudget

import (
	"math"
	"strconv"
	"strings"
)

// DefaultBudget applies to consumer types without an entry.
const DefaultBudget = 6000

// EnvPrefix marks environment overrides, e.g. TOKEN_BUDGET_NARRATIVE_LONG=9000.
const EnvPrefix = "TOKEN_BUDGET_"

// DefaultBudgets is the built-in per-consumer ceiling table.
func DefaultBudgets() map[string]int {
	return map[string]int{
		"router":          1000,
		"narrative_short": 6000,
		"narrative_long":  8000,
		"qa_rules":        5000,
		"qa_situation":    5000,
		"npc_dialogue":    6000,
		"combat_designer": 8000,
		"travel":          6000,
		"gameplay":        7000,
	}
}

// EnvOverrides extracts TOKEN_BUDGET_<TYPE> values from an os.Environ-style list.
// Invalid or non-positive values are ignored.
func EnvOverrides(environ []string) map[string]int {
	out := make(map[string]int)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		consumer := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if consumer == "" || err != nil || n <= 0 {
			continue
		}
		out[consumer] = n
	}
	return out
}

// Metadata describes one enforcement.
type Metadata struct {
	Consumer       string  `json:"agent_type"`
	OriginalTokens int     `json:"original_token_count"`
	FinalTokens    int     `json:"token_count"`
	Budget         int     `json:"budget"`
	UsagePercent   float64 `json:"usage_percent"`
	OverBudgetBy   int     `json:"over_budget_by"`
	Trimmed        bool    `json:"was_trimmed"`
}

// Enforcer applies per-consumer budgets.
type Enforcer struct {
	counter       *Counter
	budgets       map[string]int
	defaultBudget int
}

// NewEnforcer layers overrides on top of DefaultBudgets. A nil counter uses DefaultCounter.
func NewEnforcer(counter *Counter, defaultBudget int, overrides ...map[string]int) *Enforcer {
	if counter == nil {
		counter = DefaultCounter()
	}
	if defaultBudget <= 0 {
		defaultBudget = DefaultBudget
	}
	budgets := DefaultBudgets()
	for _, layer := range overrides {
		for k, v := range layer {
			if v > 0 {
				budgets[strings.ToLower(k)] = v
			}
		}
	}
	return &Enforcer{counter: counter, budgets: budgets, defaultBudget: defaultBudget}
}

// Counter exposes the underlying token counter.
func (e *Enforcer) Counter() *Counter {
	return e.counter
}

// Budget returns the ceiling for consumer.
func (e *Enforcer) Budget(consumer string) int {
	if b, ok := e.budgets[strings.ToLower(consumer)]; ok {
		return b
	}
	return e.defaultBudget
}

// Enforce trims text from the front so it fits the consumer budget. It never fails.
func (e *Enforcer) Enforce(consumer, text string) (string, Metadata) {
	budget := e.Budget(consumer)
	original := e.counter.Count(text)

	out := text
	trimmed := false
	if original > budget {
		out = e.counter.Trim(text, budget, true)
		trimmed = true
	}
	final := e.counter.Count(out)

	md := Metadata{
		Consumer:       consumer,
		OriginalTokens: original,
		FinalTokens:    final,
		Budget:         budget,
		UsagePercent:   math.Round(float64(final)/float64(budget)*1000) / 10,
		Trimmed:        trimmed,
	}
	if trimmed {
		md.OverBudgetBy = original - budget
	}
	return out, md
}
