// Package server exposes the game over HTTP: a JSON API for campaigns,
// sessions and turns, and a websocket per session that fans turn results
// out to every connected player.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"dungeonmaster/pkg/dice"
	"dungeonmaster/pkg/game"
	"dungeonmaster/pkg/hub"
	"dungeonmaster/pkg/logx"
	"dungeonmaster/pkg/persistence"
	"dungeonmaster/pkg/router"
	"dungeonmaster/pkg/version"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Game is the subset of game.Service the server drives.
type Game interface {
	CreateCampaign(ctx context.Context, req game.CampaignRequest) (*persistence.Campaign, error)
	GetCampaign(ctx context.Context, id string) (*persistence.Campaign, error)
	ListCampaigns(ctx context.Context) ([]*persistence.Campaign, error)

	CreateSession(ctx context.Context, campaignID string) (*persistence.Session, error)
	GetSession(ctx context.Context, id string) (*persistence.Session, error)
	ListSessions(ctx context.Context, campaignID string) ([]*persistence.Session, error)
	ActiveSession(ctx context.Context, campaignID string) (*persistence.Session, error)
	CloseSession(ctx context.Context, id string) (*persistence.Session, error)

	PlayTurn(ctx context.Context, sessionID, input string) (*game.TurnOutcome, error)
	Turns(ctx context.Context, sessionID string, limit int) ([]*persistence.Turn, error)
	Recap(ctx context.Context, sessionID string) (string, error)
	Memories(ctx context.Context, campaignID string) ([]*persistence.Memory, error)
}

// Server serves the API and the session websockets.
type Server struct {
	game    Game
	hub     *hub.Hub
	roller  *dice.Roller
	metrics http.Handler
	health  func() map[string]any
	logger  *logx.Logger

	// ctx bounds turns started from websockets; cancelled by Shutdown.
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithHealth adds the map returned by fn to /healthz.
func WithHealth(fn func() map[string]any) Option {
	return func(s *Server) { s.health = fn }
}

// WithRoller replaces the dice roller.
func WithRoller(r *dice.Roller) Option {
	return func(s *Server) { s.roller = r }
}

// New creates a server around g.
func New(g Game, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		game:   g,
		hub:    hub.New(),
		roller: dice.NewRoller(),
		logger: logx.NewLogger("server"),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// RegisterRoutes sets up every route on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	mux.HandleFunc("POST /api/campaigns", s.handleCreateCampaign)
	mux.HandleFunc("GET /api/campaigns", s.handleListCampaigns)
	mux.HandleFunc("GET /api/campaigns/{id}", s.handleGetCampaign)
	mux.HandleFunc("POST /api/campaigns/{id}/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/campaigns/{id}/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/campaigns/{id}/sessions/active", s.handleActiveSession)
	mux.HandleFunc("GET /api/campaigns/{id}/memories", s.handleMemories)

	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /api/sessions/{id}/turns", s.handlePlayTurn)
	mux.HandleFunc("GET /api/sessions/{id}/turns", s.handleListTurns)
	mux.HandleFunc("GET /api/sessions/{id}/recap", s.handleRecap)
	mux.HandleFunc("POST /api/sessions/{id}/close", s.handleCloseSession)

	mux.HandleFunc("POST /api/roll", s.handleRoll)
	mux.HandleFunc("GET /ws/{session}", s.handleSocket)
}

// Shutdown cancels in-flight websocket turns and drops every connection.
func (s *Server) Shutdown() {
	s.cancel()
	s.hub.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok", "version": version.Version, "time": time.Now().UTC()}
	if s.health != nil {
		for k, v := range s.health() {
			body[k] = v
		}
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req game.CampaignRequest
	if !s.decode(w, r, &req) {
		return
	}
	c, err := s.game.CreateCampaign(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	list, err := s.game.ListCampaigns(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(list))
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.game.GetCampaign(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.game.CreateSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.game.ListSessions(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(list))
}

func (s *Server) handleActiveSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.game.ActiveSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleMemories(w http.ResponseWriter, r *http.Request) {
	list, err := s.game.Memories(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(list))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.game.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

// TurnRequest is the body of POST /api/sessions/{id}/turns.
type TurnRequest struct {
	Input string `json:"user_input"`
}

// handlePlayTurn implements POST /api/sessions/{id}/turns. The outcome is
// also broadcast to the session's websocket players.
func (s *Server) handlePlayTurn(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if !s.decode(w, r, &req) {
		return
	}
	out, err := s.game.PlayTurn(r.Context(), r.PathValue("id"), req.Input)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.hub.Broadcast(out.SessionID, TurnMessage(out))
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListTurns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	turns, err := s.game.Turns(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(turns))
}

func (s *Server) handleRecap(w http.ResponseWriter, r *http.Request) {
	recap, err := s.game.Recap(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"recent_recap": recap})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.game.CloseSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.hub.Broadcast(sess.ID, Message{Type: MessageSessionClosed, Session: sess})
	s.writeJSON(w, http.StatusOK, sess)
}

// RollRequest is the body of POST /api/roll.
type RollRequest struct {
	Formula string `json:"formula"`
}

func (s *Server) handleRoll(w http.ResponseWriter, r *http.Request) {
	var req RollRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.roller.Roll(req.Formula)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to an HTTP status and a player-safe message.
func statusFor(err error) (int, string) {
	var te *router.TurnError
	switch {
	case errors.As(err, &te):
		return http.StatusBadGateway, te.PlayerMessage()
	case errors.Is(err, persistence.ErrCampaignNotFound), errors.Is(err, persistence.ErrSessionNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, persistence.ErrOpenSessionExists), errors.Is(err, persistence.ErrSessionClosed):
		return http.StatusConflict, err.Error()
	case errors.Is(err, game.ErrEmptyInput), errors.Is(err, dice.ErrBadFormula):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request cancelled"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed: %v", err)
	}
	s.writeJSON(w, code, errorBody{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
