package reconciler

import (
	"time"

	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
)

// Patch is an atomic, idempotent-safe update to the match view. All
// producers - the websocket stream, the polling fallback and the local
// optimistic submit path - funnel their changes through one of these.
type Patch interface {
	patch()
}

// FullReplace carries a complete server snapshot, from the initial
// load or the polling fallback.
type FullReplace struct {
	Game *entity.Game
}

// MoveApplied carries a single accepted move, from the push stream or
// a move response.
type MoveApplied struct {
	Row      int
	Col      int
	Mark     string
	NextTurn string
	Deadline time.Time
}

// OutcomeChanged carries a transition into a terminal phase.
type OutcomeChanged struct {
	Status     string
	WinnerID   int64
	Board      entity.Board
	TotalMoves int
}

func (FullReplace) patch()    {}
func (MoveApplied) patch()    {}
func (OutcomeChanged) patch() {}
