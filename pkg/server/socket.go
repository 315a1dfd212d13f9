package server

import (
	"encoding/json"
	"net/http"

	"dungeonmaster/pkg/dice"
	"dungeonmaster/pkg/game"
	"dungeonmaster/pkg/hub"
	"dungeonmaster/pkg/persistence"
)

// Websocket message types.
const (
	MessagePlayerInput   = "player_input"
	MessageRoll          = "roll"
	MessageTurn          = "turn"
	MessageThinking      = "thinking"
	MessageError         = "error"
	MessageSessionClosed = "session_closed"
)

// Message is the envelope for both directions of the session websocket.
// Inbound player_input carries Text; inbound roll carries Formula.
type Message struct {
	Type    string               `json:"type"`
	Text    string               `json:"text,omitempty"`
	Formula string               `json:"formula,omitempty"`
	Player  string               `json:"player,omitempty"`
	Turn    *game.TurnOutcome    `json:"turn,omitempty"`
	Roll    *dice.Result         `json:"roll,omitempty"`
	Session *persistence.Session `json:"session,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// TurnMessage wraps a turn outcome for broadcast.
func TurnMessage(out *game.TurnOutcome) Message {
	return Message{Type: MessageTurn, Turn: out}
}

// handleSocket implements GET /ws/{session}. Every player on a session sees
// every turn; errors go only to the player who sent the input.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	if _, err := s.game.GetSession(r.Context(), sessionID); err != nil {
		s.writeError(w, err)
		return
	}

	c, err := s.hub.Accept(w, r, sessionID)
	if err != nil {
		s.logger.Warn("session %s: %v", sessionID, err)
		return
	}
	s.logger.Info("player %s joined session %s", c.ID, sessionID)
	s.hub.ReadLoop(c, s.handleMessage)
}

func (s *Server) handleMessage(c *hub.Conn, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		_ = s.hub.Send(c, Message{Type: MessageError, Error: "invalid message"})
		return
	}

	switch msg.Type {
	case MessagePlayerInput:
		s.hub.Broadcast(c.SessionID, Message{Type: MessageThinking, Player: c.ID, Text: msg.Text})
		// Turns can outlast the read deadline; play them off the read loop.
		go s.playFromSocket(c, msg.Text)

	case MessageRoll:
		res, err := s.roller.Roll(msg.Formula)
		if err != nil {
			_ = s.hub.Send(c, Message{Type: MessageError, Error: err.Error()})
			return
		}
		s.hub.Broadcast(c.SessionID, Message{Type: MessageRoll, Player: c.ID, Roll: &res})

	default:
		_ = s.hub.Send(c, Message{Type: MessageError, Error: "unknown message type: " + msg.Type})
	}
}

func (s *Server) playFromSocket(c *hub.Conn, text string) {
	out, err := s.game.PlayTurn(s.ctx, c.SessionID, text)
	if err != nil {
		_, msg := statusFor(err)
		if sendErr := s.hub.Send(c, Message{Type: MessageError, Error: msg}); sendErr != nil {
			s.logger.Warn("session %s: could not report turn error to %s: %v", c.SessionID, c.ID, sendErr)
		}
		return
	}
	s.hub.Broadcast(c.SessionID, TurnMessage(out))
}
