package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"dungeonmaster/pkg/agent/middleware/resilience/retry"
	"dungeonmaster/pkg/combat"
	"dungeonmaster/pkg/contextmgr"
	"dungeonmaster/pkg/extract"
	"dungeonmaster/pkg/logx"
	"dungeonmaster/pkg/scene"
	"dungeonmaster/pkg/tokenbudget"
)

// Payload keys the orchestrator reads or writes.
const (
	KeyScenePatch   = "scene_state_patch"
	KeyTurnSummary  = "turn_summary"
	KeyMemoryWrites = "memory_writes"
	KeyCombatPlan   = "combat_plan"
)

// CombatAction is the combat-plan step actually taken this turn.
type CombatAction string

const (
	CombatKeep   CombatAction = "keep"
	CombatClear  CombatAction = "clear"
	CombatUpdate CombatAction = "update"
	// CombatSkip: an update was needed but no combat planner is registered.
	CombatSkip CombatAction = "skip"
	// CombatError: the planner failed; the previous plan is kept.
	CombatError CombatAction = "error"
)

// PromptRecorder receives the exact prompt sent to the classifier.
type PromptRecorder interface {
	RecordRouterPrompt(ctx context.Context, sessionID, input, prompt string)
}

// TurnResult is the outcome of one orchestrated turn.
type TurnResult struct {
	Narrative        string               `json:"narrative"`
	Payload          extract.Payload      `json:"structured_payload"`
	IntentUsed       Intent               `json:"intent_used"`
	Confidence       Confidence           `json:"confidence"`
	RoutingNote      string               `json:"routing_note"`
	CombatPlanAction CombatAction         `json:"combat_plan_action"`
	CombatReason     string               `json:"combat_reason"`
	CombatPlan       *scene.CombatPlan    `json:"combat_plan,omitempty"`
	ContextUsage     tokenbudget.Metadata `json:"context_usage"`
}

// ScenePatch returns the payload's scene patch, including any folded combat plan.
func (r TurnResult) ScenePatch() scene.Patch {
	return scene.PatchFromObject(r.Payload.Object(KeyScenePatch))
}

// TurnSummary returns the payload's one-line summary, if any.
func (r TurnResult) TurnSummary() string {
	return r.Payload.String(KeyTurnSummary)
}

// Orchestrator runs the classify, dispatch, generate, extract and combat-check pipeline.
// It holds no per-session state; callers serialize turns per session.
type Orchestrator struct {
	classifier Classifier
	responders map[Intent]Responder
	builder    *contextmgr.Builder
	runner     *retry.Runner
	policy     combat.Policy
	recorder   PromptRecorder
	logger     *logx.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBuilder sets the context builder.
func WithBuilder(b *contextmgr.Builder) Option {
	return func(o *Orchestrator) { o.builder = b }
}

// WithRetry sets the retry runner used for every remote call.
func WithRetry(r *retry.Runner) Option {
	return func(o *Orchestrator) { o.runner = r }
}

// WithCombatPolicy sets the combat readiness thresholds.
func WithCombatPolicy(p combat.Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithPromptRecorder captures classifier prompts.
func WithPromptRecorder(r PromptRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// New creates an orchestrator. responders maps each intent to its specialist;
// the combat_designer entry also prepares combat plans.
func New(classifier Classifier, responders map[Intent]Responder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		classifier: classifier,
		responders: make(map[Intent]Responder, len(responders)),
		builder:    contextmgr.NewBuilder(nil),
		runner:     retry.NewRunner(retry.DefaultConfig()),
		policy:     combat.DefaultPolicy(),
		logger:     logx.NewLogger("router"),
	}
	for intent, r := range responders {
		if r != nil {
			o.responders[intent] = r
		}
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OrchestrateTurn handles one player input against a snapshot of the session.
func (o *Orchestrator) OrchestrateTurn(ctx context.Context, sessionID, input string, sc contextmgr.SessionContext) (TurnResult, error) {
	ctx = logx.ContextWithSession(ctx, sessionID)

	ri := o.classify(ctx, sessionID, input, sc)
	o.logger.Info("[%s] intent=%s confidence=%s note=%s", sessionID, ri.Intent, ri.Confidence, ri.Note)

	intent, responder := o.dispatch(ri.Intent)
	if responder == nil {
		return TurnResult{}, &TurnError{
			Kind:   KindConfiguration,
			Intent: ri.Intent,
			Err:    fmt.Errorf("no responder registered for %s or %s", ri.Intent, IntentNarrativeShort),
		}
	}
	if intent != ri.Intent {
		o.logger.Warn("[%s] no responder for %s, using %s", sessionID, ri.Intent, intent)
	}

	prompt, usage := o.builder.Build(string(intent), sc, input)
	if usage.Trimmed {
		o.logger.Warn("[%s] %s context trimmed from %d to %d tokens", sessionID, intent, usage.OriginalTokens, usage.FinalTokens)
	}

	raw, err := retry.Do(ctx, o.runner, string(intent), func(ctx context.Context) (string, error) {
		return responder.Generate(ctx, prompt)
	})
	if err != nil {
		return TurnResult{}, &TurnError{Kind: KindGeneration, Intent: intent, Err: err}
	}

	res := extract.Split(raw)
	result := TurnResult{
		Narrative:    res.Narrative,
		Payload:      res.Payload,
		IntentUsed:   intent,
		Confidence:   ri.Confidence,
		RoutingNote:  ri.Note,
		ContextUsage: usage,
	}

	o.checkCombat(ctx, sessionID, sc, &result)
	return result, nil
}

func (o *Orchestrator) classify(ctx context.Context, sessionID, input string, sc contextmgr.SessionContext) RouterIntent {
	fallback := func(note string) RouterIntent {
		return RouterIntent{Intent: IntentNarrativeShort, Confidence: ConfidenceLow, Note: note}
	}
	if o.classifier == nil {
		return fallback("No classifier configured, defaulting to short narrative")
	}

	recent, _ := o.builder.Build(contextmgr.RouterConsumer, sc, input)
	prompt := "Classify this player input:\n\n" + input + "\n\nContext (recent events):\n" + recent
	if o.recorder != nil {
		o.recorder.RecordRouterPrompt(ctx, sessionID, input, prompt)
	}

	out, err := retry.Do(ctx, o.runner, "router", func(ctx context.Context) (ClassifierOutput, error) {
		return o.classifier.Classify(ctx, prompt)
	})
	if err != nil {
		o.logger.Warn("[%s] classifier failed, defaulting to %s: %v", sessionID, IntentNarrativeShort, err)
		return fallback("Router failed, defaulting to short narrative")
	}

	ri, err := out.Resolve()
	if err != nil {
		logx.Debug(ctx, "router", "unusable classifier output: %v", err)
		return fallback(fmt.Sprintf("Router returned invalid format (%v), defaulting to short narrative", err))
	}
	return ri
}

func (o *Orchestrator) dispatch(intent Intent) (Intent, Responder) {
	if r, ok := o.responders[intent]; ok {
		return intent, r
	}
	if r, ok := o.responders[IntentNarrativeShort]; ok {
		return IntentNarrativeShort, r
	}
	return intent, nil
}

// checkCombat evaluates readiness against the scene as this turn's patch leaves it.
func (o *Orchestrator) checkCombat(ctx context.Context, sessionID string, sc contextmgr.SessionContext, result *TurnResult) {
	merged, skipped := scene.Merge(sc.Scene, result.ScenePatch())
	if len(skipped) > 0 {
		logx.Debug(ctx, "combat", "ignored scene patch keys: %s", strings.Join(skipped, ", "))
	}

	status := o.policy.Evaluate(merged.Participants, merged.Location(), merged.HostileEnvironment, merged.CombatPlan)
	o.logger.Info("[%s] combat readiness action=%s reason=%s", sessionID, status.Action, status.Reason)
	result.CombatReason = status.Reason

	switch status.Action {
	case combat.ActionKeep:
		result.CombatPlanAction = CombatKeep
		result.CombatPlan = merged.CombatPlan

	case combat.ActionClear:
		result.CombatPlanAction = CombatClear
		result.CombatPlan = nil
		o.foldPlan(result, nil)

	case combat.ActionUpdate:
		planner, ok := o.responders[IntentCombatDesigner]
		if !ok {
			o.logger.Warn("[%s] combat plan update needed but no combat planner is registered", sessionID)
			result.CombatPlanAction = CombatSkip
			result.CombatReason = "combat_designer responder not available"
			result.CombatPlan = merged.CombatPlan
			return
		}

		plan, err := o.preparePlan(ctx, planner, sc, merged)
		if err != nil {
			o.logger.Error("[%s] combat plan generation failed, keeping previous plan: %v", sessionID, err)
			result.CombatPlanAction = CombatError
			result.CombatReason = status.Reason + "; generation failed: " + err.Error()
			result.CombatPlan = merged.CombatPlan
			return
		}

		o.logger.Info("[%s] combat plan updated: %s", sessionID, plan.EncounterName)
		result.CombatPlanAction = CombatUpdate
		result.CombatPlan = plan
		o.foldPlan(result, plan)
	}
}

func (o *Orchestrator) preparePlan(ctx context.Context, planner Responder, sc contextmgr.SessionContext, current scene.State) (*scene.CombatPlan, error) {
	task := fmt.Sprintf("Prepare a combat encounter for the current scene.\n\n"+
		"Current participants: [%s]\nCurrent location: %s\nHostile environment: %t\n\n"+
		"Design an encounter that accounts for these NPCs and this environment. "+
		"This is background preparation: combat has not started yet, but be ready if it does.",
		strings.Join(current.Participants, ", "), current.SpecificLocation, current.HostileEnvironment)

	planCtx := sc
	planCtx.Scene = current
	input, _ := o.builder.BuildTask(string(IntentCombatDesigner), planCtx, task)

	raw, err := retry.Do(ctx, o.runner, "combat_plan", func(ctx context.Context) (string, error) {
		return planner.Generate(ctx, input)
	})
	if err != nil {
		return nil, err
	}

	plan := planFromPayload(extract.Split(raw).Payload)
	plan.PreparedForNPCs = scene.NormalizeNames(current.Participants)
	plan.PreparedForLocation = current.Location()
	return &plan, nil
}

// foldPlan records the plan under the scene patch's combat_plan key; nil records a clear.
func (o *Orchestrator) foldPlan(result *TurnResult, plan *scene.CombatPlan) {
	if result.Payload == nil {
		result.Payload = extract.Payload{}
	}
	patch := result.Payload.Object(KeyScenePatch)
	if patch == nil {
		patch = map[string]json.RawMessage{}
	}
	raw := json.RawMessage("null")
	if plan != nil {
		if b, err := json.Marshal(plan); err == nil {
			raw = b
		}
	}
	patch[KeyCombatPlan] = raw
	result.Payload.Set(KeyScenePatch, patch)
}

// planFromPayload reads plan fields from the payload root or its combat_plan object.
// Non-string values for text fields are kept as compact JSON.
func planFromPayload(p extract.Payload) scene.CombatPlan {
	if nested := p.Object(KeyCombatPlan); nested != nil {
		p = extract.Payload(nested)
	}
	var opponents []any
	if !p.Decode("opponents", &opponents) || opponents == nil {
		opponents = []any{}
	}
	return scene.CombatPlan{
		EncounterName:           text(p, "encounter_name"),
		EncounterSummary:        text(p, "encounter_summary"),
		EncounterRole:           text(p, "encounter_role"),
		TargetDifficulty:        text(p, "target_difficulty"),
		BattlefieldAndMechanics: text(p, "battlefield_and_mechanics"),
		Tactics:                 text(p, "tactics"),
		Opponents:               opponents,
	}
}

func text(p extract.Payload, key string) string {
	raw, ok := p[key]
	if !ok || extract.IsNull(raw) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}
