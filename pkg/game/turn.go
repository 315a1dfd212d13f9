package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dungeonmaster/pkg/contextmgr"
	"dungeonmaster/pkg/eventlog"
	"dungeonmaster/pkg/persistence"
	"dungeonmaster/pkg/router"
	"dungeonmaster/pkg/scene"
	"dungeonmaster/pkg/tokenbudget"
)

// Turn outcomes reported to metrics.
const (
	OutcomeOK        = "ok"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// TurnOutcome is what a player sees after a turn.
type TurnOutcome struct {
	SessionID      string               `json:"session_id"`
	TurnNumber     int                  `json:"turn_number"`
	Narrative      string               `json:"dm_response"`
	Intent         router.Intent        `json:"intent_used"`
	Confidence     router.Confidence    `json:"confidence"`
	RoutingNote    string               `json:"routing_note"`
	Scene          scene.State          `json:"scene_state"`
	SessionSummary string               `json:"session_summary"`
	CombatAction   router.CombatAction  `json:"combat_plan_action"`
	CombatReason   string               `json:"combat_reason"`
	MemoryWrites   int                  `json:"memory_writes"`
	ContextUsage   tokenbudget.Metadata `json:"context_usage"`
}

// PlayTurn runs one player input through the orchestrator and commits the
// result. Nothing is written unless the whole turn succeeds.
func (s *Service) PlayTurn(ctx context.Context, sessionID, input string) (*TurnOutcome, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	start := s.now()
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err //nolint:wrapcheck // store errors carry context
	}
	if !sess.Open() {
		return nil, fmt.Errorf("%w: %s", persistence.ErrSessionClosed, sessionID)
	}

	recent, err := s.store.RecentTurns(ctx, sessionID, s.recapTurns)
	if err != nil {
		return nil, fmt.Errorf("load recent turns: %w", err)
	}
	sc := contextmgr.SessionContext{
		SessionPlan: sess.Plan,
		Scene:       sess.Scene,
		RecentRecap: contextmgr.Recap(exchanges(recent), s.recapTurns, s.recapWords),
	}

	result, err := s.orch.OrchestrateTurn(ctx, sessionID, input, sc)
	if err != nil {
		s.failTurn(ctx, sess, result, err, start)
		return nil, err //nolint:wrapcheck // TurnError is the public contract
	}
	if err := ctx.Err(); err != nil {
		s.failTurn(ctx, sess, result, err, start)
		return nil, err //nolint:wrapcheck // context error
	}

	next, skipped := scene.Merge(sess.Scene, result.ScenePatch())
	if len(skipped) > 0 {
		s.logger.Warn("[%s] scene patch ignored keys: %s", sessionID, strings.Join(skipped, ", "))
	}
	switch result.CombatPlanAction {
	case router.CombatClear:
		next.CombatPlan = nil
	case router.CombatUpdate:
		next.CombatPlan = result.CombatPlan
	}

	payload, err := json.Marshal(result.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	memories := memoryWrites(result.Payload)
	summary := strings.TrimSpace(result.TurnSummary())
	turn := &persistence.Turn{
		SessionID:    sessionID,
		PlayerInput:  input,
		Narrative:    result.Narrative,
		Intent:       string(result.IntentUsed),
		Scene:        next,
		Summary:      summary,
		Payload:      payload,
		CombatAction: string(result.CombatPlanAction),
	}
	if err := s.store.SaveTurn(ctx, persistence.TurnCommit{Turn: turn, SessionSummary: summary, Memories: memories}); err != nil {
		s.failTurn(ctx, sess, result, err, start)
		return nil, fmt.Errorf("save turn: %w", err)
	}

	sessionSummary := sess.Summary
	if summary != "" {
		sessionSummary = summary
	}

	s.events.Emit(eventlog.Event{
		Event:      eventlog.EventTurnPlayed,
		CampaignID: sess.CampaignID,
		SessionID:  sessionID,
		TurnNumber: turn.Number,
		Data: map[string]any{
			"intent":        string(result.IntentUsed),
			"confidence":    string(result.Confidence),
			"memory_writes": len(memories),
			"context_usage": result.ContextUsage,
		},
	})
	if result.CombatPlanAction != router.CombatKeep && result.CombatPlanAction != "" {
		data := map[string]any{"action": string(result.CombatPlanAction), "reason": result.CombatReason}
		if result.CombatPlan != nil {
			data["encounter_name"] = result.CombatPlan.EncounterName
		}
		s.events.Emit(eventlog.Event{
			Event:      eventlog.EventCombatPlan,
			CampaignID: sess.CampaignID,
			SessionID:  sessionID,
			TurnNumber: turn.Number,
			Data:       data,
		})
	}
	s.metrics.ObserveTurn(string(result.IntentUsed), string(result.CombatPlanAction), OutcomeOK, s.now().Sub(start))

	return &TurnOutcome{
		SessionID:      sessionID,
		TurnNumber:     turn.Number,
		Narrative:      result.Narrative,
		Intent:         result.IntentUsed,
		Confidence:     result.Confidence,
		RoutingNote:    result.RoutingNote,
		Scene:          next,
		SessionSummary: sessionSummary,
		CombatAction:   result.CombatPlanAction,
		CombatReason:   result.CombatReason,
		MemoryWrites:   len(memories),
		ContextUsage:   result.ContextUsage,
	}, nil
}

func (s *Service) failTurn(ctx context.Context, sess *persistence.Session, result router.TurnResult, err error, start time.Time) {
	outcome := OutcomeFailed
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		outcome = OutcomeCancelled
	}
	intent := string(result.IntentUsed)
	var te *router.TurnError
	if errors.As(err, &te) {
		intent = string(te.Intent)
	}

	s.logger.Error("[%s] turn %d failed: %v", sess.ID, sess.TurnCount+1, err)
	s.events.Emit(eventlog.Event{
		Event:      eventlog.EventTurnFailed,
		CampaignID: sess.CampaignID,
		SessionID:  sess.ID,
		TurnNumber: sess.TurnCount + 1,
		Data:       map[string]any{"intent": intent, "outcome": outcome, "error": err.Error()},
	})
	s.metrics.ObserveTurn(intent, string(result.CombatPlanAction), outcome, s.now().Sub(start))
}
