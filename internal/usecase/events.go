package usecase

import (
	"time"

	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
)

const (
	// EventStateChanged carries a fresh match snapshot after an applied patch.
	EventStateChanged = "state_changed"
	// EventCountdown carries the remaining time of the current turn.
	EventCountdown = "countdown"
	// EventError carries a recoverable failure, e.g. a rejected move.
	EventError = "error"
	// EventSessionDown means reconnection gave up; the view is frozen
	// and the consumer should start over.
	EventSessionDown = "session_down"
)

type Event struct {
	Kind      string
	Game      *entity.Game
	Remaining time.Duration
	Err       error
}
