// Package game runs campaigns and sessions on top of the turn orchestrator:
// session planning, turn play with atomic persistence, and session close-out.
package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dungeonmaster/pkg/agent/middleware/metrics"
	"dungeonmaster/pkg/contextmgr"
	"dungeonmaster/pkg/eventlog"
	"dungeonmaster/pkg/logx"
	"dungeonmaster/pkg/persistence"
	"dungeonmaster/pkg/router"
)

// Default recap bounds.
const (
	DefaultRecapTurns = 3
	DefaultRecapWords = 200
)

// ErrEmptyInput is returned by PlayTurn for blank player input.
var ErrEmptyInput = errors.New("player input is empty")

// Store is the persistence contract. Reads return copies; SaveTurn is atomic.
type Store interface {
	CreateCampaign(ctx context.Context, c *persistence.Campaign) error
	GetCampaign(ctx context.Context, id string) (*persistence.Campaign, error)
	ListCampaigns(ctx context.Context) ([]*persistence.Campaign, error)

	CreateSession(ctx context.Context, s *persistence.Session) error
	GetSession(ctx context.Context, id string) (*persistence.Session, error)
	ListSessions(ctx context.Context, campaignID string) ([]*persistence.Session, error)
	ActiveSession(ctx context.Context, campaignID string) (*persistence.Session, error)
	CloseSession(ctx context.Context, id, summary string) error

	RecentTurns(ctx context.Context, sessionID string, limit int) ([]*persistence.Turn, error)
	SaveTurn(ctx context.Context, commit persistence.TurnCommit) error
	ListMemories(ctx context.Context, campaignID string) ([]*persistence.Memory, error)
}

// Orchestrator runs one turn.
type Orchestrator interface {
	OrchestrateTurn(ctx context.Context, sessionID, input string, sc contextmgr.SessionContext) (router.TurnResult, error)
}

// EventSink receives game events.
type EventSink interface {
	Emit(ev eventlog.Event)
}

// Options configures a Service. Zero values are usable.
type Options struct {
	// Planner drafts a session plan. Nil uses a minimal plan.
	Planner router.Responder
	// Summarizer writes the post-session summary. Nil uses the running summary.
	Summarizer router.Responder
	RecapTurns int
	RecapWords int
	Events     EventSink
	Metrics    metrics.Recorder
}

// Service is the session lifecycle layer. Turns on one session run one at a
// time; different sessions run concurrently.
type Service struct {
	store      Store
	orch       Orchestrator
	planner    router.Responder
	summarizer router.Responder
	recapTurns int
	recapWords int
	events     EventSink
	metrics    metrics.Recorder
	locks      *sessionLocks
	now        func() time.Time
	logger     *logx.Logger
}

// NewService creates a service.
func NewService(store Store, orch Orchestrator, opts Options) *Service {
	s := &Service{
		store:      store,
		orch:       orch,
		planner:    opts.Planner,
		summarizer: opts.Summarizer,
		recapTurns: opts.RecapTurns,
		recapWords: opts.RecapWords,
		events:     opts.Events,
		metrics:    opts.Metrics,
		locks:      newSessionLocks(),
		now:        time.Now,
		logger:     logx.NewLogger("game"),
	}
	if s.recapTurns <= 0 {
		s.recapTurns = DefaultRecapTurns
	}
	if s.recapWords <= 0 {
		s.recapWords = DefaultRecapWords
	}
	if s.events == nil {
		s.events = discard{}
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop()
	}
	return s
}

type discard struct{}

func (discard) Emit(eventlog.Event) {}

// CampaignRequest holds the user-supplied campaign fields.
type CampaignRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	World       string `json:"world"`
	Outline     string `json:"outline"`
}

// CreateCampaign stores a new campaign.
func (s *Service) CreateCampaign(ctx context.Context, req CampaignRequest) (*persistence.Campaign, error) {
	c := &persistence.Campaign{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		World:       strings.TrimSpace(req.World),
		Outline:     req.Outline,
	}
	if err := s.store.CreateCampaign(ctx, c); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	s.events.Emit(eventlog.Event{
		Event:      eventlog.EventCampaignCreated,
		CampaignID: c.ID,
		Data:       map[string]any{"world": c.World},
	})
	s.logger.Info("campaign %s created: %s", c.ID, c.Name)
	return c, nil
}

// GetCampaign returns one campaign.
func (s *Service) GetCampaign(ctx context.Context, id string) (*persistence.Campaign, error) {
	return s.store.GetCampaign(ctx, id) //nolint:wrapcheck // store errors carry context
}

// ListCampaigns returns every campaign, newest first.
func (s *Service) ListCampaigns(ctx context.Context) ([]*persistence.Campaign, error) {
	return s.store.ListCampaigns(ctx) //nolint:wrapcheck // store errors carry context
}

// GetSession returns one session.
func (s *Service) GetSession(ctx context.Context, id string) (*persistence.Session, error) {
	return s.store.GetSession(ctx, id) //nolint:wrapcheck // store errors carry context
}

// ListSessions returns a campaign's sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, campaignID string) ([]*persistence.Session, error) {
	if _, err := s.store.GetCampaign(ctx, campaignID); err != nil {
		return nil, err //nolint:wrapcheck // store errors carry context
	}
	return s.store.ListSessions(ctx, campaignID) //nolint:wrapcheck // store errors carry context
}

// ActiveSession returns the campaign's open session.
func (s *Service) ActiveSession(ctx context.Context, campaignID string) (*persistence.Session, error) {
	return s.store.ActiveSession(ctx, campaignID) //nolint:wrapcheck // store errors carry context
}

// Turns returns up to limit of the session's latest turns, oldest first.
func (s *Service) Turns(ctx context.Context, sessionID string, limit int) ([]*persistence.Turn, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err //nolint:wrapcheck // store errors carry context
	}
	return s.store.RecentTurns(ctx, sessionID, limit) //nolint:wrapcheck // store errors carry context
}

// Memories returns the campaign's mirrored memory writes.
func (s *Service) Memories(ctx context.Context, campaignID string) ([]*persistence.Memory, error) {
	if _, err := s.store.GetCampaign(ctx, campaignID); err != nil {
		return nil, err //nolint:wrapcheck // store errors carry context
	}
	return s.store.ListMemories(ctx, campaignID) //nolint:wrapcheck // store errors carry context
}

// Recap returns the recap the next turn would see.
func (s *Service) Recap(ctx context.Context, sessionID string) (string, error) {
	turns, err := s.Turns(ctx, sessionID, s.recapTurns)
	if err != nil {
		return "", err
	}
	return contextmgr.Recap(exchanges(turns), s.recapTurns, s.recapWords), nil
}

func exchanges(turns []*persistence.Turn) []contextmgr.Exchange {
	out := make([]contextmgr.Exchange, 0, len(turns))
	for _, t := range turns {
		out = append(out, contextmgr.Exchange{Player: t.PlayerInput, DM: t.Narrative})
	}
	return out
}
