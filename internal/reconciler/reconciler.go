package reconciler

import (
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/tictactoe-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
)

// Reconciler owns the authoritative in-memory view of one match. Every
// mutation goes through Apply under a single lock, so two patches are
// never interleaved; semantically stale or duplicate patches are
// dropped instead of applied out of order.
type Reconciler struct {
	logger *slog.Logger

	mu            sync.Mutex
	game          *entity.Game
	localPlayerID int64
	pending       bool
	version       int
	winning       []entity.Cell

	updates chan *entity.Game
}

func New(logger *slog.Logger, game *entity.Game, localPlayerID int64) *Reconciler {
	return &Reconciler{
		logger:        logger.With("component", "reconciler"),
		game:          game.Clone(),
		localPlayerID: localPlayerID,
		version:       game.TotalMoves,
		updates:       make(chan *entity.Game, 1),
	}
}

// Updates publishes a snapshot after every applied patch, latest wins.
func (that *Reconciler) Updates() <-chan *entity.Game {
	return that.updates
}

func (that *Reconciler) Snapshot() *entity.Game {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.game.Clone()
}

// LocalMark is the fixed mark of the local participant: x in a bot
// match, otherwise derived from the participant order. It is computed
// fresh on every call.
func (that *Reconciler) LocalMark() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.localMarkLocked()
}

func (that *Reconciler) localMarkLocked() string {
	if that.game.IsWithBot() {
		return entity.MarkX
	}

	return that.game.MarkFor(that.localPlayerID)
}

// WinningCells is the locally detected winning line, kept purely for
// highlighting; it never overrides the server-declared winner.
func (that *Reconciler) WinningCells() []entity.Cell {
	that.mu.Lock()
	defer that.mu.Unlock()

	line := make([]entity.Cell, len(that.winning))
	copy(line, that.winning)

	return line
}

func (that *Reconciler) PendingMove() bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.pending
}

func (that *Reconciler) CanSubmitMove(row, col int) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.validateMoveLocked(row, col) == nil
}

// BeginMove validates the move preconditions and sets the pending-move
// guard in one step, so only one move can ever be in flight.
func (that *Reconciler) BeginMove(row, col int) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if err := that.validateMoveLocked(row, col); err != nil {
		return err
	}
	that.pending = true

	return nil
}

// FinishMove clears the pending-move guard after a failed or rejected
// submission. A successful submission clears it through Apply instead.
func (that *Reconciler) FinishMove() {
	that.mu.Lock()
	that.pending = false
	that.mu.Unlock()
}

func (that *Reconciler) validateMoveLocked(row, col int) error {
	if that.pending {
		return apperror.ErrMoveInFlight
	}

	game := that.game
	if err := game.ValidateCell(row, col); err != nil {
		return err
	}
	if game.Board[row][col] != entity.EmptyCell {
		return apperror.ErrCellOccupied
	}

	// The opening move of a bot match is always the human's, even while
	// the match is nominally waiting on the server.
	firstBotMove := game.IsWithBot() && (game.IsWaiting() || (game.IsInProgress() && game.TotalMoves == 0))
	if firstBotMove {
		return nil
	}

	if !game.IsInProgress() {
		return apperror.ErrGameFinished
	}
	if game.Turn != that.localMarkLocked() {
		return apperror.ErrNotYourTurn
	}

	return nil
}

// Apply funnels one patch into the view. It reports whether the patch
// changed anything; stale and duplicate patches are dropped. Every
// applied patch clears the pending-move guard.
func (that *Reconciler) Apply(patch Patch) bool {
	that.mu.Lock()

	var applied bool
	switch concrete := patch.(type) {
	case FullReplace:
		applied = that.applyFullLocked(concrete)
	case MoveApplied:
		applied = that.applyMoveLocked(concrete)
	case OutcomeChanged:
		applied = that.applyOutcomeLocked(concrete)
	}

	if !applied {
		that.mu.Unlock()
		return false
	}

	that.pending = false

	if that.game.IsTerminal() {
		that.game.Turn = entity.EmptyCell
		// recomputed locally, used for highlighting only
		that.winning = entity.DetectOutcome(that.game.Board).Line
	} else {
		that.winning = nil
	}

	snapshot := that.game.Clone()
	that.mu.Unlock()

	that.publish(snapshot)

	return true
}

func (that *Reconciler) applyFullLocked(patch FullReplace) bool {
	next := patch.Game
	if next == nil {
		return false
	}

	if next.ID != that.game.ID {
		that.logger.Warn("dropping snapshot for another match", "got", next.ID, "want", that.game.ID)
		return false
	}

	if that.game.IsTerminal() {
		return false
	}

	if next.IsTerminal() {
		that.game = next.Clone()
		if next.TotalMoves > that.version {
			that.version = next.TotalMoves
		}
		return true
	}

	if next.TotalMoves < that.version {
		that.logger.Debug("dropping stale snapshot", "moves", next.TotalMoves, "version", that.version)
		return false
	}

	if !hasChanged(that.game, next) {
		return false
	}

	that.game = next.Clone()
	that.version = next.TotalMoves

	return true
}

func (that *Reconciler) applyMoveLocked(patch MoveApplied) bool {
	game := that.game
	if game.IsTerminal() {
		return false
	}

	if game.ValidateCell(patch.Row, patch.Col) != nil {
		return false
	}

	// the same MoveApplied delivered twice is a no-op
	if game.Board[patch.Row][patch.Col] == patch.Mark && game.Turn == patch.NextTurn {
		return false
	}

	if game.Board[patch.Row][patch.Col] != entity.EmptyCell {
		that.logger.Warn("dropping conflicting move", "row", patch.Row, "col", patch.Col)
		return false
	}

	game.Board[patch.Row][patch.Col] = patch.Mark
	game.Turn = patch.NextTurn
	game.TotalMoves++
	that.version = game.TotalMoves
	if !patch.Deadline.IsZero() {
		game.Deadline = patch.Deadline
	}
	if game.IsWaiting() {
		game.Status = entity.StatusInProgress
	}

	return true
}

func (that *Reconciler) applyOutcomeLocked(patch OutcomeChanged) bool {
	game := that.game
	if game.IsTerminal() {
		return false
	}

	probe := entity.Game{Status: patch.Status}
	if !probe.IsTerminal() {
		return false
	}

	game.Status = patch.Status
	game.WinnerID = patch.WinnerID
	if patch.Board != nil {
		game.Board = patch.Board.Clone()
	}
	if patch.TotalMoves > 0 {
		game.TotalMoves = patch.TotalMoves
		if patch.TotalMoves > that.version {
			that.version = patch.TotalMoves
		}
	}

	return true
}

// hasChanged mirrors the change detection used for the polling
// fallback: a snapshot counts as new only if the status, the turn mark
// or any board cell differs.
func hasChanged(current, next *entity.Game) bool {
	return current.Status != next.Status ||
		current.Turn != next.Turn ||
		!current.Board.Equal(next.Board)
}

func (that *Reconciler) publish(snapshot *entity.Game) {
	select {
	case that.updates <- snapshot:
		return
	default:
	}

	select {
	case <-that.updates:
	default:
	}

	select {
	case that.updates <- snapshot:
	default:
	}
}
