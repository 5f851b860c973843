package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
)

func TestRandomFreeCell(t *testing.T) {
	t.Run("Only free cell is chosen", func(t *testing.T) {
		// Given: a board with a single free cell
		game := entity.NewGame(1, entity.WithBotType, 3)
		for row := range game.Board {
			for col := range game.Board[row] {
				game.Board[row][col] = entity.MarkX
			}
		}
		game.Board[2][1] = entity.EmptyCell

		// When: picking a move
		row, col, err := RandomFreeCell(game)

		// Then: the free cell is the only possible pick
		require.NoError(t, err)
		assert.Equal(t, 2, row)
		assert.Equal(t, 1, col)
	})

	t.Run("Full board has no moves", func(t *testing.T) {
		game := entity.NewGame(1, entity.WithBotType, 3)
		for row := range game.Board {
			for col := range game.Board[row] {
				game.Board[row][col] = entity.MarkO
			}
		}

		_, _, err := RandomFreeCell(game)

		assert.ErrorIs(t, err, ErrNoAvailableMoves)
	})

	t.Run("Picked cell is always free", func(t *testing.T) {
		game := entity.NewGame(1, entity.WithBotType, 3)
		game.Board[0][0] = entity.MarkX
		game.Board[1][1] = entity.MarkO

		for i := 0; i < 20; i++ {
			row, col, err := RandomFreeCell(game)
			require.NoError(t, err)
			assert.Equal(t, entity.EmptyCell, game.Board[row][col])
		}
	})
}
