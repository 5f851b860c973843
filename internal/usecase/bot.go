package usecase

import (
	"errors"
	"math/rand"

	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
	"github.com/rocketscienceinc/tictactoe-client/internal/reconciler"
)

var ErrNoAvailableMoves = errors.New("no available moves")

// maybeScheduleBot asks the server for the automated reply when a bot
// match is waiting on the bot's mark. Triggers arriving from both the
// push stream and the poll collapse into one in-flight request; a
// trigger that is stale by the time the think delay elapses is
// discarded.
func (that *MatchSession) maybeScheduleBot(game *entity.Game) {
	if game == nil || !game.IsWithBot() {
		return
	}
	if !game.IsInProgress() && !game.IsWaiting() {
		return
	}
	if game.Turn != entity.MarkO {
		return
	}

	if !that.botBusy.CompareAndSwap(false, true) {
		return
	}

	gameID := game.ID

	that.wg.Add(1)
	go func() {
		defer that.wg.Done()
		defer that.botBusy.Store(false)

		// give consumers a beat to render the human's move first
		select {
		case <-that.ctx.Done():
			return
		case <-that.clock.After(that.conf.BotThinkDelay):
		}

		current := that.recon.Snapshot()
		if current.ID != gameID || !current.IsWithBot() || current.IsTerminal() || current.Turn != entity.MarkO {
			that.logger.Debug("discarding stale bot trigger")
			return
		}

		updated, err := that.games.MakeBotMove(that.ctx, gameID)
		if err != nil {
			that.logger.Error("bot move failed", "error", err)
			that.emit(Event{Kind: EventError, Err: err})
			return
		}

		that.recon.Apply(reconciler.FullReplace{Game: updated})
	}()
}

// RandomFreeCell picks an unoccupied cell, the same way the reference
// easy bot does. The headless runner uses it to play the human side.
func RandomFreeCell(game *entity.Game) (int, int, error) {
	free := make([]entity.Cell, 0, game.BoardSize*game.BoardSize)
	for row := range game.Board {
		for col := range game.Board[row] {
			if game.Board[row][col] == entity.EmptyCell {
				free = append(free, entity.Cell{Row: row, Col: col})
			}
		}
	}

	if len(free) == 0 {
		return 0, 0, ErrNoAvailableMoves
	}

	chosen := free[rand.Intn(len(free))] //nolint: gosec // it's ok

	return chosen.Row, chosen.Col, nil
}
