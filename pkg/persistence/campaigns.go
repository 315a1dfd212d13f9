package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Campaign is a long-running game that sessions belong to. Outline is the
// campaign arc handed to the session planner, usually a JSON document.
type Campaign struct {
	ID          string     `json:"campaign_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	World       string     `json:"world"`
	Outline     string     `json:"outline,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastPlayed  *time.Time `json:"last_played,omitempty"`
}

// GenerateCampaignID returns a new campaign identifier.
func GenerateCampaignID() string {
	return "camp_" + uuid.NewString()[:8]
}

// CreateCampaign inserts c. An empty ID or name is filled in; CreatedAt is set to now.
func (s *Store) CreateCampaign(ctx context.Context, c *Campaign) error {
	if c.ID == "" {
		c.ID = GenerateCampaignID()
	}
	if strings.TrimSpace(c.Name) == "" {
		c.Name = "Campaign " + c.ID
	}
	c.CreatedAt = s.timestamp()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, name, description, world, outline, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Description, c.World, c.Outline, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert campaign %s: %w", c.ID, err)
	}
	return nil
}

// GetCampaign returns the campaign with id, or ErrCampaignNotFound.
func (s *Store) GetCampaign(ctx context.Context, id string) (*Campaign, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, world, outline, created_at, last_played
		FROM campaigns WHERE id = ?`, id)
	c, err := scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCampaignNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign %s: %w", id, err)
	}
	return c, nil
}

// ListCampaigns returns every campaign, newest first.
func (s *Store) ListCampaigns(ctx context.Context) ([]*Campaign, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, world, outline, created_at, last_played
		FROM campaigns ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate campaigns: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(r rowScanner) (*Campaign, error) {
	var (
		c          Campaign
		lastPlayed sql.NullTime
	)
	if err := r.Scan(&c.ID, &c.Name, &c.Description, &c.World, &c.Outline, &c.CreatedAt, &lastPlayed); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context
	}
	c.LastPlayed = timePtr(lastPlayed)
	return &c, nil
}
