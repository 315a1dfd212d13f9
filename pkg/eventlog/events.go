package eventlog

import (
	"context"
	"time"

	"dungeonmaster/pkg/logx"
)

// Event types.
const (
	EventCampaignCreated = "campaign_created"
	EventSessionCreated  = "session_created"
	EventSessionPlanFail = "session_plan_extraction_failed"
	EventTurnPlayed      = "turn_played"
	EventTurnFailed      = "turn_failed"
	EventCombatPlan      = "combat_plan"
	EventSessionClosed   = "session_closed"
)

// Event is one game event line.
type Event struct {
	Event      string         `json:"event"`
	Timestamp  time.Time      `json:"ts"`
	CampaignID string         `json:"campaign_id,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	TurnNumber int            `json:"turn_number,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// RouterCapture is one classifier prompt captured for offline evaluation.
type RouterCapture struct {
	Timestamp    time.Time `json:"timestamp"`
	SessionID    string    `json:"session_id"`
	UserInput    string    `json:"user_input"`
	RouterPrompt string    `json:"router_prompt"`
}

// Recorder writes game events and, when eval capture is on, router prompts.
// A nil *Recorder discards everything. Write failures are logged, never returned.
type Recorder struct {
	events   *Writer
	captures *Writer
	now      func() time.Time
	logger   *logx.Logger
}

// NewRecorder opens the event log in dir. captureRouterPrompts enables router_captures files.
func NewRecorder(dir string, captureRouterPrompts bool) (*Recorder, error) {
	return newRecorder(dir, captureRouterPrompts, time.Now)
}

func newRecorder(dir string, captureRouterPrompts bool, now func() time.Time) (*Recorder, error) {
	events, err := newPrefixedWriter(dir, EventsPrefix, now)
	if err != nil {
		return nil, err
	}
	r := &Recorder{events: events, now: now, logger: logx.NewLogger("eventlog")}
	if captureRouterPrompts {
		captures, err := newPrefixedWriter(dir, CapturePrefix, now)
		if err != nil {
			_ = events.Close()
			return nil, err
		}
		r.captures = captures
	}
	return r, nil
}

// Emit stamps and writes ev.
func (r *Recorder) Emit(ev Event) {
	if r == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.now().UTC()
	}
	if err := r.events.Write(ev); err != nil {
		r.logger.Warn("dropping %s event: %v", ev.Event, err)
	}
}

// CapturesEnabled reports whether router prompts are recorded.
func (r *Recorder) CapturesEnabled() bool {
	return r != nil && r.captures != nil
}

// RecordRouterPrompt captures the exact classifier prompt when capture is enabled.
func (r *Recorder) RecordRouterPrompt(_ context.Context, sessionID, input, prompt string) {
	if !r.CapturesEnabled() {
		return
	}
	rec := RouterCapture{
		Timestamp:    r.now().UTC(),
		SessionID:    sessionID,
		UserInput:    input,
		RouterPrompt: prompt,
	}
	if err := r.captures.Write(rec); err != nil {
		r.logger.Warn("dropping router capture: %v", err)
	}
}

// EventsFile returns the active game event file.
func (r *Recorder) EventsFile() string {
	if r == nil {
		return ""
	}
	return r.events.GetCurrentLogFile()
}

// Close closes both files.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	err := r.events.Close()
	if r.captures != nil {
		if cerr := r.captures.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
