package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"dungeonmaster/pkg/scene"
)

// Turn is one played exchange. Turns are append-only.
type Turn struct {
	SessionID    string          `json:"session_id"`
	Number       int             `json:"turn_number"`
	PlayerInput  string          `json:"user_input"`
	Narrative    string          `json:"dm_response"`
	Intent       string          `json:"intent"`
	Scene        scene.State     `json:"scene_state"`
	Summary      string          `json:"turn_summary"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	CombatAction string          `json:"combat_action,omitempty"`
	CreatedAt    time.Time       `json:"timestamp"`
}

// Memory is one structured memory write mirrored from a turn payload.
type Memory struct {
	ID         int64           `json:"id"`
	CampaignID string          `json:"campaign_id"`
	SessionID  string          `json:"session_id"`
	TurnNumber int             `json:"turn_number"`
	Kind       string          `json:"type"`
	Keys       []string        `json:"keys"`
	Summary    string          `json:"summary"`
	Raw        json.RawMessage `json:"raw,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// TurnCommit is everything a successful turn writes.
type TurnCommit struct {
	Turn *Turn
	// SessionSummary replaces the session summary when non-empty.
	SessionSummary string
	Memories       []Memory
}

// SaveTurn appends the turn, stores its scene as the session scene, bumps the
// turn count and mirrors memories in one transaction. The turn number is
// assigned here and written back to commit.Turn.
func (s *Store) SaveTurn(ctx context.Context, commit TurnCommit) error {
	t := commit.Turn
	if t == nil {
		return fmt.Errorf("save turn: nil turn")
	}
	payload := string(t.Payload)
	if payload == "" {
		payload = "{}"
	}
	now := s.timestamp()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		open, err := lockOpenSession(ctx, tx, t.SessionID)
		if err != nil {
			return err
		}
		number := open.turnCount + 1
		sceneJSON := t.Scene.JSON()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO turns (session_id, number, player_input, narrative, intent, scene, summary, payload, combat_action, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.SessionID, number, t.PlayerInput, t.Narrative, t.Intent, sceneJSON, t.Summary, payload, t.CombatAction, now)
		if err != nil {
			return fmt.Errorf("failed to insert turn %d: %w", number, err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE sessions
			SET scene = ?, turn_count = ?, last_activity = ?,
			    summary = CASE WHEN ? != '' THEN ? ELSE summary END
			WHERE id = ?`,
			sceneJSON, number, now, commit.SessionSummary, commit.SessionSummary, t.SessionID)
		if err != nil {
			return fmt.Errorf("failed to update session %s: %w", t.SessionID, err)
		}

		for i := range commit.Memories {
			m := &commit.Memories[i]
			keys, err := json.Marshal(nonNil(m.Keys))
			if err != nil {
				return fmt.Errorf("failed to encode memory keys: %w", err)
			}
			raw := string(m.Raw)
			if raw == "" {
				raw = "{}"
			}
			res, err := tx.ExecContext(ctx, `
				INSERT INTO memories (campaign_id, session_id, turn_number, kind, keys, summary, raw, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				open.campaignID, t.SessionID, number, m.Kind, string(keys), m.Summary, raw, now)
			if err != nil {
				return fmt.Errorf("failed to insert memory: %w", err)
			}
			if id, err := res.LastInsertId(); err == nil {
				m.ID = id
			}
			m.CampaignID = open.campaignID
			m.SessionID = t.SessionID
			m.TurnNumber = number
			m.CreatedAt = now
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE campaigns SET last_played = ? WHERE id = ?", now, open.campaignID); err != nil {
			return fmt.Errorf("failed to update campaign %s: %w", open.campaignID, err)
		}

		t.Number = number
		t.CreatedAt = now
		return nil
	})
}

// RecentTurns returns up to limit of the session's latest turns, oldest first.
// A non-positive limit returns every turn.
func (s *Store) RecentTurns(ctx context.Context, sessionID string, limit int) ([]*Turn, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, number, player_input, narrative, intent, scene, summary, payload, combat_action, created_at
		FROM (
			SELECT * FROM turns WHERE session_id = ? ORDER BY number DESC LIMIT ?
		) ORDER BY number ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Turn
	for rows.Next() {
		var (
			t         Turn
			sceneJSON string
			payload   string
		)
		if err := rows.Scan(&t.SessionID, &t.Number, &t.PlayerInput, &t.Narrative, &t.Intent,
			&sceneJSON, &t.Summary, &payload, &t.CombatAction, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.Scene = scene.New()
		if err := json.Unmarshal([]byte(sceneJSON), &t.Scene); err != nil {
			return nil, fmt.Errorf("failed to decode scene of turn %d: %w", t.Number, err)
		}
		t.Payload = json.RawMessage(payload)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turns: %w", err)
	}
	return out, nil
}

// ListMemories returns the campaign's memories in write order.
func (s *Store) ListMemories(ctx context.Context, campaignID string) ([]*Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, campaign_id, session_id, turn_number, kind, keys, summary, raw, created_at
		FROM memories WHERE campaign_id = ? ORDER BY id`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Memory
	for rows.Next() {
		var (
			m    Memory
			keys string
			raw  string
		)
		if err := rows.Scan(&m.ID, &m.CampaignID, &m.SessionID, &m.TurnNumber, &m.Kind,
			&keys, &m.Summary, &raw, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		if err := json.Unmarshal([]byte(keys), &m.Keys); err != nil {
			return nil, fmt.Errorf("failed to decode memory keys: %w", err)
		}
		m.Raw = json.RawMessage(raw)
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memories: %w", err)
	}
	return out, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
