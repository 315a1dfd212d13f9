package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"dungeonmaster/pkg/eventlog"
	"dungeonmaster/pkg/extract"
	"dungeonmaster/pkg/persistence"
	"dungeonmaster/pkg/scene"
)

// Plan keys.
const (
	KeySessionTitle    = "session_title"
	KeyBeats           = "beats"
	KeyInitialScene    = "initial_scene_state_patch"
	minimalSessionPlan = `{"session_title":"Open play","beats":[]}`
)

// ErrPlanInvalid marks planner output missing session_title or beats.
var ErrPlanInvalid = errors.New("session plan extraction/validation failed")

// CreateSession opens the next session of a campaign. It refuses when one is
// already open. With a planner the plan comes from the model; a planner failure
// or an invalid plan falls back to a minimal plan.
func (s *Service) CreateSession(ctx context.Context, campaignID string) (*persistence.Session, error) {
	campaign, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err //nolint:wrapcheck // store errors carry context
	}
	if open, err := s.store.ActiveSession(ctx, campaignID); err == nil {
		return nil, fmt.Errorf("%w: %s", persistence.ErrOpenSessionExists, open.ID)
	} else if !errors.Is(err, persistence.ErrSessionNotFound) {
		return nil, err //nolint:wrapcheck // store errors carry context
	}

	plan := s.planSession(ctx, campaign)

	start := scene.New()
	if obj := plan.Object(KeyInitialScene); obj != nil {
		var skipped []string
		start, skipped = scene.Merge(start, scene.PatchFromObject(obj))
		if len(skipped) > 0 {
			s.logger.Warn("campaign %s: initial scene ignored keys %s", campaignID, strings.Join(skipped, ", "))
		}
	}

	planJSON, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("encode session plan: %w", err)
	}

	sess := &persistence.Session{
		CampaignID: campaignID,
		Plan:       planJSON,
		Scene:      start,
		Summary:    "Session just started",
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.events.Emit(eventlog.Event{
		Event:      eventlog.EventSessionCreated,
		CampaignID: campaignID,
		SessionID:  sess.ID,
		Data:       map[string]any{"number": sess.Number, "title": plan.String(KeySessionTitle)},
	})
	s.logger.Info("session %s (#%d) opened for campaign %s", sess.ID, sess.Number, campaignID)
	return sess, nil
}

func (s *Service) planSession(ctx context.Context, campaign *persistence.Campaign) extract.Payload {
	minimal := func() extract.Payload {
		var p extract.Payload
		_ = json.Unmarshal([]byte(minimalSessionPlan), &p)
		return p
	}
	if s.planner == nil {
		return minimal()
	}

	raw, err := s.planner.Generate(ctx, s.planningRequest(ctx, campaign))
	if err != nil {
		s.logger.Error("campaign %s: session planner failed, using minimal plan: %v", campaign.ID, err)
		s.emitPlanFailure(campaign.ID, err.Error(), 0)
		return minimal()
	}

	plan, err := validatePlan(extract.Split(raw))
	if err != nil {
		s.logger.Warn("campaign %s: %v, using minimal plan", campaign.ID, err)
		s.emitPlanFailure(campaign.ID, err.Error(), len(raw))
		return minimal()
	}
	return plan
}

func (s *Service) emitPlanFailure(campaignID, reason string, outputLen int) {
	s.events.Emit(eventlog.Event{
		Event:      eventlog.EventSessionPlanFail,
		CampaignID: campaignID,
		Data:       map[string]any{"reason": reason, "output_length": outputLen},
	})
}

// validatePlan requires session_title and beats on the extracted payload.
func validatePlan(res extract.Result) (extract.Payload, error) {
	if !res.Found || len(res.Payload) == 0 {
		return nil, fmt.Errorf("%w: no data extracted from planner output", ErrPlanInvalid)
	}
	var missing []string
	for _, key := range []string{KeySessionTitle, KeyBeats} {
		if _, ok := res.Payload[key]; !ok || extract.IsNull(res.Payload[key]) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required keys: %s", ErrPlanInvalid, strings.Join(missing, ", "))
	}
	return res.Payload, nil
}

func (s *Service) planningRequest(ctx context.Context, campaign *persistence.Campaign) string {
	outline := strings.TrimSpace(campaign.Outline)
	if outline == "" {
		outline = campaign.Description
	}

	var last string
	if sessions, err := s.store.ListSessions(ctx, campaign.ID); err == nil && len(sessions) > 0 {
		last = sessions[0].Summary
	}
	if strings.TrimSpace(last) == "" {
		last = "(This is the first session.)"
	}

	var sb strings.Builder
	sb.WriteString("# Campaign Overview\n\n")
	fmt.Fprintf(&sb, "Campaign: %s\nWorld: %s\n\n%s\n\n---\n\n", campaign.Name, campaign.World, outline)
	sb.WriteString("# Last Session\n\n")
	sb.WriteString(last)
	sb.WriteString("\n\n---\n\n# Your Task\n\n")
	sb.WriteString("Plan the next session so it continues the story and moves toward the campaign's intended arc. ")
	sb.WriteString("Return the plan as a fenced json block with session_title, beats and initial_scene_state_patch.")
	return sb.String()
}

// CloseSession marks a session closed and stores its summary. A summarizer
// failure keeps the running summary instead.
func (s *Service) CloseSession(ctx context.Context, sessionID string) (*persistence.Session, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err //nolint:wrapcheck // store errors carry context
	}
	if !sess.Open() {
		return nil, fmt.Errorf("%w: %s", persistence.ErrSessionClosed, sessionID)
	}

	summary := s.summarize(ctx, sess)
	if err := s.store.CloseSession(ctx, sessionID, summary); err != nil {
		return nil, fmt.Errorf("close session: %w", err)
	}

	s.events.Emit(eventlog.Event{
		Event:      eventlog.EventSessionClosed,
		CampaignID: sess.CampaignID,
		SessionID:  sessionID,
		TurnNumber: sess.TurnCount,
	})
	s.logger.Info("session %s closed after %d turns", sessionID, sess.TurnCount)
	return s.store.GetSession(ctx, sessionID) //nolint:wrapcheck // store errors carry context
}

func (s *Service) summarize(ctx context.Context, sess *persistence.Session) string {
	fallback := sess.Summary
	if strings.TrimSpace(fallback) == "" || fallback == "Session just started" {
		fallback = fmt.Sprintf("Session closed after %d turns.", sess.TurnCount)
	}
	if s.summarizer == nil {
		return fallback
	}

	turns, err := s.store.RecentTurns(ctx, sess.ID, 0)
	if err != nil {
		s.logger.Warn("session %s: cannot load transcript: %v", sess.ID, err)
		return fallback
	}

	var sb strings.Builder
	sb.WriteString("# Session Plan (INTENDED)\n\n```json\n")
	sb.Write(sess.Plan)
	sb.WriteString("\n```\n\n---\n\n# Session Transcript (ACTUAL)\n\n")
	for _, t := range turns {
		fmt.Fprintf(&sb, "Player: %s\nDM: %s\n\n", t.PlayerInput, t.Narrative)
	}
	sb.WriteString("---\n\nWrite the post-session analysis comparing what was planned with what happened.")

	raw, err := s.summarizer.Generate(ctx, sb.String())
	if err != nil {
		s.logger.Error("session %s: summary generation failed: %v", sess.ID, err)
		return fallback
	}
	text := strings.TrimSpace(extract.Split(raw).Narrative)
	if text == "" {
		return fallback
	}
	return text
}
