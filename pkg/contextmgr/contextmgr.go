// Package contextmgr assembles the per-consumer context handed to the classifier,
// specialist responders and the combat planner.
package contextmgr

import (
	"encoding/json"
	"strings"

	"dungeonmaster/pkg/scene"
	"dungeonmaster/pkg/tokenbudget"
)

// RouterConsumer is the consumer type of the intent classifier.
const RouterConsumer = "router"

// NoHistory is what the classifier sees before the first turn.
const NoHistory = "(No recent history)"

// SessionContext is the read-only input of one turn.
type SessionContext struct {
	SessionPlan json.RawMessage `json:"session_plan"`
	Scene       scene.State     `json:"scene_state"`
	RecentRecap string          `json:"recent_recap"`
}

// Builder renders consumer-specific context and enforces its token budget.
type Builder struct {
	enforcer *tokenbudget.Enforcer
}

// NewBuilder creates a builder. A nil enforcer uses the built-in budget table.
func NewBuilder(enforcer *tokenbudget.Enforcer) *Builder {
	if enforcer == nil {
		enforcer = tokenbudget.NewEnforcer(nil, 0)
	}
	return &Builder{enforcer: enforcer}
}

// Enforcer returns the budget enforcer used by the builder.
func (b *Builder) Enforcer() *tokenbudget.Enforcer {
	return b.enforcer
}

// Build returns the context for consumer. The router gets only the recap;
// every other consumer, known or not, gets the full session block followed by
// the player's input.
func (b *Builder) Build(consumer string, sc SessionContext, input string) (string, tokenbudget.Metadata) {
	var text string
	if consumer == RouterConsumer {
		text = sc.RecentRecap
		if strings.TrimSpace(text) == "" {
			text = NoHistory
		}
	} else {
		text = Blob(sc) + "\n\nPlayer: " + input
	}
	return b.enforcer.Enforce(consumer, text)
}

// BuildTask renders the full session block followed by an orchestrator
// instruction instead of player input, budgeted for consumer.
func (b *Builder) BuildTask(consumer string, sc SessionContext, task string) (string, tokenbudget.Metadata) {
	return b.enforcer.Enforce(consumer, Blob(sc)+"\n\n"+task)
}

// Blob renders the session plan, scene state and recap as one delimited block.
func Blob(sc SessionContext) string {
	plan := "{}"
	if len(sc.SessionPlan) > 0 && !isNull(sc.SessionPlan) {
		plan = string(sc.SessionPlan)
	}
	recap := sc.RecentRecap
	if strings.TrimSpace(recap) == "" {
		recap = "(none)"
	}

	var sb strings.Builder
	sb.WriteString("DM CONTEXT\n")
	sb.WriteString("Session plan:\n")
	sb.WriteString(plan)
	sb.WriteString("\n\nSceneState JSON:\n")
	sb.WriteString(sc.Scene.JSON())
	sb.WriteString("\n\nRecent Recap:\n")
	sb.WriteString(recap)
	sb.WriteString("\nEND CONTEXT")
	return sb.String()
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}
