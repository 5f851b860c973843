package reconciler

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBotGame() *entity.Game {
	game := entity.NewGame(42, entity.WithBotType, 3)
	game.Player1ID = 7
	game.Status = entity.StatusInProgress
	game.Turn = entity.MarkX

	return game
}

func newPvPGame() *entity.Game {
	game := entity.NewGame(42, entity.PvPType, 3)
	game.Player1ID = 7
	game.Player2ID = 8
	game.Status = entity.StatusInProgress
	game.Turn = entity.MarkX

	return game
}

func drainUpdates(recon *Reconciler) {
	select {
	case <-recon.Updates():
	default:
	}
}

func TestReconciler_MoveValidation(t *testing.T) {
	t.Run("Occupied cell is rejected", func(t *testing.T) {
		// Given: a match where the opening cell is already taken
		game := newBotGame()
		game.Board[0][0] = entity.MarkO
		recon := New(newTestLogger(), game, game.Player1ID)

		// Then: that cell cannot be played again
		assert.False(t, recon.CanSubmitMove(0, 0))
		assert.ErrorIs(t, recon.BeginMove(0, 0), apperror.ErrCellOccupied)
	})

	t.Run("Out of range cell is rejected", func(t *testing.T) {
		recon := New(newTestLogger(), newBotGame(), 7)

		assert.ErrorIs(t, recon.BeginMove(3, 0), apperror.ErrInvalidCell)
		assert.ErrorIs(t, recon.BeginMove(0, -1), apperror.ErrInvalidCell)
	})

	t.Run("Move on opponent turn is rejected", func(t *testing.T) {
		// Given: a pvp match where it is the opponent's turn
		game := newPvPGame()
		game.Turn = entity.MarkO
		game.TotalMoves = 1
		game.Board[1][1] = entity.MarkX
		recon := New(newTestLogger(), game, game.Player1ID)

		// Then: the local participant cannot move yet
		assert.ErrorIs(t, recon.BeginMove(0, 0), apperror.ErrNotYourTurn)
	})

	t.Run("Move after the match ended is rejected", func(t *testing.T) {
		game := newPvPGame()
		game.Status = entity.StatusFinished
		recon := New(newTestLogger(), game, game.Player1ID)

		assert.ErrorIs(t, recon.BeginMove(0, 0), apperror.ErrGameFinished)
	})
}

func TestReconciler_FirstBotMove(t *testing.T) {
	t.Run("Opening move allowed while the match is still waiting", func(t *testing.T) {
		// Given: a freshly created bot match that the server reports as waiting
		game := newBotGame()
		game.Status = entity.StatusWaiting
		game.Turn = entity.EmptyCell
		recon := New(newTestLogger(), game, game.Player1ID)

		// Then: the human may open anyway
		assert.True(t, recon.CanSubmitMove(0, 0))
		assert.NoError(t, recon.BeginMove(0, 0))
	})

	t.Run("Opening move allowed in progress before any move landed", func(t *testing.T) {
		// Given: an in-progress bot match with an untouched board
		game := newBotGame()
		game.Turn = entity.EmptyCell
		recon := New(newTestLogger(), game, game.Player1ID)

		// Then: the opening move is treated the same as the waiting case
		assert.True(t, recon.CanSubmitMove(1, 1))
	})
}

func TestReconciler_PendingMoveGuard(t *testing.T) {
	// Given: a bot match with a move already in flight
	recon := New(newTestLogger(), newBotGame(), 7)
	require.NoError(t, recon.BeginMove(0, 0))
	require.True(t, recon.PendingMove())

	t.Run("Second submission is blocked", func(t *testing.T) {
		assert.ErrorIs(t, recon.BeginMove(1, 1), apperror.ErrMoveInFlight)
		assert.False(t, recon.CanSubmitMove(1, 1))
	})

	t.Run("FinishMove releases the guard", func(t *testing.T) {
		recon.FinishMove()

		assert.False(t, recon.PendingMove())
		assert.True(t, recon.CanSubmitMove(1, 1))
	})

	t.Run("Any applied patch releases the guard", func(t *testing.T) {
		require.NoError(t, recon.BeginMove(0, 0))

		applied := recon.Apply(MoveApplied{Row: 0, Col: 0, Mark: entity.MarkX, NextTurn: entity.MarkO})

		require.True(t, applied)
		assert.False(t, recon.PendingMove())
	})
}

func TestReconciler_ApplyMove(t *testing.T) {
	t.Run("Move lands on the board and advances the turn", func(t *testing.T) {
		// Given: a fresh bot match
		recon := New(newTestLogger(), newBotGame(), 7)
		deadline := time.Now().Add(10 * time.Second)

		// When: the server confirms a move
		applied := recon.Apply(MoveApplied{Row: 0, Col: 0, Mark: entity.MarkX, NextTurn: entity.MarkO, Deadline: deadline})

		// Then: the snapshot reflects the move
		require.True(t, applied)
		game := recon.Snapshot()
		assert.Equal(t, entity.MarkX, game.Board[0][0])
		assert.Equal(t, entity.MarkO, game.Turn)
		assert.Equal(t, 1, game.TotalMoves)
		assert.Equal(t, deadline, game.Deadline)
	})

	t.Run("Same move delivered twice is a no-op", func(t *testing.T) {
		// Given: a match that already applied a move
		recon := New(newTestLogger(), newBotGame(), 7)
		patch := MoveApplied{Row: 0, Col: 0, Mark: entity.MarkX, NextTurn: entity.MarkO}
		require.True(t, recon.Apply(patch))
		drainUpdates(recon)

		// When: the exact same patch is delivered again
		applied := recon.Apply(patch)

		// Then: nothing changes and no update is published
		assert.False(t, applied)
		assert.Equal(t, 1, recon.Snapshot().TotalMoves)
		select {
		case <-recon.Updates():
			t.Fatal("duplicate move must not publish an update")
		default:
		}
	})

	t.Run("Conflicting move on an occupied cell is dropped", func(t *testing.T) {
		recon := New(newTestLogger(), newBotGame(), 7)
		require.True(t, recon.Apply(MoveApplied{Row: 0, Col: 0, Mark: entity.MarkX, NextTurn: entity.MarkO}))

		applied := recon.Apply(MoveApplied{Row: 0, Col: 0, Mark: entity.MarkO, NextTurn: entity.MarkX})

		assert.False(t, applied)
		assert.Equal(t, entity.MarkX, recon.Snapshot().Board[0][0])
	})

	t.Run("Move promotes a waiting match to in progress", func(t *testing.T) {
		game := newBotGame()
		game.Status = entity.StatusWaiting
		recon := New(newTestLogger(), game, game.Player1ID)

		require.True(t, recon.Apply(MoveApplied{Row: 0, Col: 0, Mark: entity.MarkX, NextTurn: entity.MarkO}))

		assert.Equal(t, entity.StatusInProgress, recon.Snapshot().Status)
	})
}

func TestReconciler_ApplyFullReplace(t *testing.T) {
	t.Run("Stale snapshot with fewer moves is dropped", func(t *testing.T) {
		// Given: a view that already saw four moves
		game := newPvPGame()
		recon := New(newTestLogger(), game, game.Player1ID)
		ahead := game.Clone()
		ahead.TotalMoves = 4
		ahead.Board[0][0] = entity.MarkX
		ahead.Board[0][1] = entity.MarkO
		ahead.Board[1][1] = entity.MarkX
		ahead.Board[1][0] = entity.MarkO
		require.True(t, recon.Apply(FullReplace{Game: ahead}))

		// When: a poll response from before the fourth move arrives
		stale := game.Clone()
		stale.TotalMoves = 3
		stale.Board[0][0] = entity.MarkX
		stale.Board[0][1] = entity.MarkO
		stale.Board[1][1] = entity.MarkX

		// Then: the stale snapshot does not rewind the view
		assert.False(t, recon.Apply(FullReplace{Game: stale}))
		assert.Equal(t, 4, recon.Snapshot().TotalMoves)
	})

	t.Run("Unchanged snapshot is dropped", func(t *testing.T) {
		game := newPvPGame()
		recon := New(newTestLogger(), game, game.Player1ID)

		assert.False(t, recon.Apply(FullReplace{Game: game.Clone()}))
	})

	t.Run("Snapshot for another match is dropped", func(t *testing.T) {
		recon := New(newTestLogger(), newPvPGame(), 7)
		other := newPvPGame()
		other.ID = 99
		other.Turn = entity.MarkO

		assert.False(t, recon.Apply(FullReplace{Game: other}))
	})

	t.Run("Terminal snapshot applies even with fewer moves", func(t *testing.T) {
		// Given: a view four moves in
		game := newPvPGame()
		recon := New(newTestLogger(), game, game.Player1ID)
		ahead := game.Clone()
		ahead.TotalMoves = 4
		ahead.Turn = entity.MarkO
		ahead.Board[0][0] = entity.MarkX
		require.True(t, recon.Apply(FullReplace{Game: ahead}))

		// When: the opponent surrenders, which does not bump the move count
		abandoned := ahead.Clone()
		abandoned.Status = entity.StatusAbandoned
		abandoned.TotalMoves = 4
		abandoned.WinnerID = game.Player1ID

		// Then: the terminal snapshot still applies
		require.True(t, recon.Apply(FullReplace{Game: abandoned}))
		assert.Equal(t, entity.StatusAbandoned, recon.Snapshot().Status)
	})

	t.Run("Terminal state is sticky", func(t *testing.T) {
		// Given: a finished match
		game := newPvPGame()
		recon := New(newTestLogger(), game, game.Player1ID)
		done := game.Clone()
		done.Status = entity.StatusFinished
		require.True(t, recon.Apply(FullReplace{Game: done}))

		// When: a late in-progress snapshot arrives
		late := game.Clone()
		late.TotalMoves = 9

		// Then: the finished state never reverts
		assert.False(t, recon.Apply(FullReplace{Game: late}))
		assert.Equal(t, entity.StatusFinished, recon.Snapshot().Status)
	})
}

func TestReconciler_ApplyOutcome(t *testing.T) {
	t.Run("Only terminal statuses apply", func(t *testing.T) {
		recon := New(newTestLogger(), newPvPGame(), 7)

		assert.False(t, recon.Apply(OutcomeChanged{Status: entity.StatusInProgress}))
	})

	t.Run("Outcome ends the match and records the winner", func(t *testing.T) {
		// Given: a running pvp match
		recon := New(newTestLogger(), newPvPGame(), 7)
		board := entity.NewBoard(3)
		board[0][0], board[0][1], board[0][2] = entity.MarkX, entity.MarkX, entity.MarkX
		board[1][0], board[1][1] = entity.MarkO, entity.MarkO

		// When: the server declares the outcome
		applied := recon.Apply(OutcomeChanged{Status: entity.StatusFinished, WinnerID: 7, Board: board, TotalMoves: 5})

		// Then: the view is terminal with the winning line highlighted
		require.True(t, applied)
		game := recon.Snapshot()
		assert.Equal(t, entity.StatusFinished, game.Status)
		assert.Equal(t, int64(7), game.WinnerID)
		assert.Equal(t, entity.EmptyCell, game.Turn)
		assert.Equal(t, []entity.Cell{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 0, Col: 2}}, recon.WinningCells())
	})
}

func TestReconciler_LocalMark(t *testing.T) {
	t.Run("Human always plays x against the bot", func(t *testing.T) {
		recon := New(newTestLogger(), newBotGame(), 7)

		assert.Equal(t, entity.MarkX, recon.LocalMark())
	})

	t.Run("PvP mark follows the participant order", func(t *testing.T) {
		game := newPvPGame()

		assert.Equal(t, entity.MarkX, New(newTestLogger(), game, 7).LocalMark())
		assert.Equal(t, entity.MarkO, New(newTestLogger(), game, 8).LocalMark())
	})
}

func TestReconciler_UpdatesLatestWins(t *testing.T) {
	// Given: a match where two patches apply before anyone reads updates
	recon := New(newTestLogger(), newBotGame(), 7)
	require.True(t, recon.Apply(MoveApplied{Row: 0, Col: 0, Mark: entity.MarkX, NextTurn: entity.MarkO}))
	require.True(t, recon.Apply(MoveApplied{Row: 1, Col: 1, Mark: entity.MarkO, NextTurn: entity.MarkX}))

	// When: the consumer finally reads
	game := <-recon.Updates()

	// Then: only the latest snapshot is delivered
	assert.Equal(t, 2, game.TotalMoves)
	assert.Equal(t, entity.MarkO, game.Board[1][1])
}
