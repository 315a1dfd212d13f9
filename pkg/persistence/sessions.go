package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dungeonmaster/pkg/scene"
)

// Session status constants.
const (
	SessionStatusOpen   = "open"
	SessionStatusClosed = "closed"
)

// Session is one sitting of play within a campaign. Scene and TurnCount change
// only through SaveTurn.
type Session struct {
	ID           string          `json:"session_id"`
	CampaignID   string          `json:"campaign_id"`
	Number       int             `json:"number"`
	Status       string          `json:"status"`
	Plan         json.RawMessage `json:"session_plan"`
	Scene        scene.State     `json:"scene_state"`
	Summary      string          `json:"summary"`
	TurnCount    int             `json:"turn_count"`
	CreatedAt    time.Time       `json:"created_at"`
	LastActivity time.Time       `json:"last_activity"`
	ClosedAt     *time.Time      `json:"closed_at,omitempty"`
}

// Open reports whether the session still accepts turns.
func (s *Session) Open() bool {
	return s.Status == SessionStatusOpen
}

// CreateSession inserts sess as the next numbered open session of its campaign.
// It fails with ErrOpenSessionExists if the campaign already has one open, and
// with ErrCampaignNotFound if the campaign does not exist.
func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if len(sess.Plan) == 0 {
		sess.Plan = json.RawMessage("{}")
	}
	now := s.timestamp()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM campaigns WHERE id = ?", sess.CampaignID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrCampaignNotFound, sess.CampaignID)
		}
		if err != nil {
			return fmt.Errorf("failed to check campaign %s: %w", sess.CampaignID, err)
		}

		var openID string
		err = tx.QueryRowContext(ctx,
			"SELECT id FROM sessions WHERE campaign_id = ? AND status = ? LIMIT 1",
			sess.CampaignID, SessionStatusOpen).Scan(&openID)
		if err == nil {
			return fmt.Errorf("%w: %s", ErrOpenSessionExists, openID)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check open sessions: %w", err)
		}

		var last sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			"SELECT MAX(number) FROM sessions WHERE campaign_id = ?", sess.CampaignID).Scan(&last); err != nil {
			return fmt.Errorf("failed to number session: %w", err)
		}

		sess.Number = int(last.Int64) + 1
		sess.Status = SessionStatusOpen
		sess.TurnCount = 0
		sess.CreatedAt = now
		sess.LastActivity = now
		sess.ClosedAt = nil

		_, err = tx.ExecContext(ctx, `
			INSERT INTO sessions (id, campaign_id, number, status, plan, scene, summary, turn_count, created_at, last_activity)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			sess.ID, sess.CampaignID, sess.Number, sess.Status, string(sess.Plan), sess.Scene.JSON(), sess.Summary, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert session %s: %w", sess.ID, err)
		}
		return nil
	})
}

const sessionColumns = `id, campaign_id, number, status, plan, scene, summary, turn_count, created_at, last_activity, closed_at`

// GetSession returns the session with id, or ErrSessionNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns the campaign's sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, campaignID string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE campaign_id = ? ORDER BY number DESC", campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return out, nil
}

// ActiveSession returns the campaign's open session, or ErrSessionNotFound.
func (s *Store) ActiveSession(ctx context.Context, campaignID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE campaign_id = ? AND status = ? LIMIT 1",
		campaignID, SessionStatusOpen)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no open session for campaign %s", ErrSessionNotFound, campaignID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active session: %w", err)
	}
	return sess, nil
}

// CloseSession marks the session closed with a final summary.
// Closing an already closed session returns ErrSessionClosed.
func (s *Store) CloseSession(ctx context.Context, id, summary string) error {
	now := s.timestamp()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := lockOpenSession(ctx, tx, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE sessions SET status = ?, summary = ?, last_activity = ?, closed_at = ?
			WHERE id = ?`,
			SessionStatusClosed, summary, now, now, id)
		if err != nil {
			return fmt.Errorf("failed to close session %s: %w", id, err)
		}
		return nil
	})
}

// lockOpenSession returns the session's campaign and turn count inside tx,
// failing if the session is missing or closed.
func lockOpenSession(ctx context.Context, tx *sql.Tx, id string) (openSession, error) {
	var (
		open   openSession
		status string
	)
	err := tx.QueryRowContext(ctx,
		"SELECT campaign_id, status, turn_count FROM sessions WHERE id = ?", id).
		Scan(&open.campaignID, &status, &open.turnCount)
	if errors.Is(err, sql.ErrNoRows) {
		return open, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return open, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	if status != SessionStatusOpen {
		return open, fmt.Errorf("%w: %s", ErrSessionClosed, id)
	}
	return open, nil
}

type openSession struct {
	campaignID string
	turnCount  int
}

func scanSession(r rowScanner) (*Session, error) {
	var (
		sess      Session
		plan      string
		sceneJSON string
		closedAt  sql.NullTime
	)
	if err := r.Scan(&sess.ID, &sess.CampaignID, &sess.Number, &sess.Status, &plan, &sceneJSON,
		&sess.Summary, &sess.TurnCount, &sess.CreatedAt, &sess.LastActivity, &closedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context
	}
	sess.Plan = json.RawMessage(plan)
	sess.Scene = scene.New()
	if err := json.Unmarshal([]byte(sceneJSON), &sess.Scene); err != nil {
		return nil, fmt.Errorf("failed to decode scene of session %s: %w", sess.ID, err)
	}
	sess.ClosedAt = timePtr(closedAt)
	return &sess, nil
}
