package router

import "fmt"

// ErrorKind separates turn failures the player should see differently.
type ErrorKind string

const (
	// KindGeneration: the specialist could not produce a response.
	KindGeneration ErrorKind = "generation"
	// KindConfiguration: no responder is available to handle the turn.
	KindConfiguration ErrorKind = "configuration"
)

// TurnError is a turn-fatal failure.
type TurnError struct {
	Kind   ErrorKind
	Intent Intent
	Err    error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s error (intent %s): %v", e.Kind, e.Intent, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// PlayerMessage is the single message shown to players. It never includes the cause.
func (e *TurnError) PlayerMessage() string {
	if e.Kind == KindConfiguration {
		return "Configuration error: the game is not set up to answer this turn. Please contact the host."
	}
	return "The Dungeon Master could not produce a response this turn. Please try again."
}
