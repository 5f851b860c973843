package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-client/internal/apperror"
)

func TestNormalizeBoard(t *testing.T) {
	t.Run("Flat array of marks and nulls", func(t *testing.T) {
		// Given: the flat wire form with null for empty cells
		raw := json.RawMessage(`[["x",null,"o"],[null,"x",null],[null,null,null]]`)

		// When: normalizing the payload
		board, err := NormalizeBoard(raw)

		// Then: nulls become empty cells and marks survive
		require.NoError(t, err)
		assert.Equal(t, boardFrom("x.o", ".x.", "..."), board)
	})

	t.Run("State envelope form", func(t *testing.T) {
		// Given: the wrapped wire form some server revisions send
		raw := json.RawMessage(`{"state":[["o",null],[null,"x"]]}`)

		// When: normalizing the payload
		board, err := NormalizeBoard(raw)

		// Then: the inner state is unwrapped
		require.NoError(t, err)
		assert.Equal(t, MarkO, board[0][0])
		assert.Equal(t, MarkX, board[1][1])
	})

	t.Run("Unknown tokens become empty cells", func(t *testing.T) {
		raw := json.RawMessage(`[["X","?"],["x","o"]]`)

		board, err := NormalizeBoard(raw)

		require.NoError(t, err)
		assert.Equal(t, EmptyCell, board[0][0])
		assert.Equal(t, EmptyCell, board[0][1])
		assert.Equal(t, MarkX, board[1][0])
	})

	t.Run("Empty payload is malformed", func(t *testing.T) {
		_, err := NormalizeBoard(nil)

		assert.ErrorIs(t, err, apperror.ErrMalformed)
	})

	t.Run("Unrecognized shape is malformed", func(t *testing.T) {
		_, err := NormalizeBoard(json.RawMessage(`{"rows":3}`))

		assert.ErrorIs(t, err, apperror.ErrMalformed)
	})
}

func TestBoard_OccupiedCells(t *testing.T) {
	board := boardFrom("x.o", ".x.", "...")

	assert.Equal(t, 3, board.OccupiedCells())
	assert.Equal(t, 0, NewBoard(4).OccupiedCells())
}

func TestBoard_Equal(t *testing.T) {
	assert.True(t, boardFrom("x..", "...", "...").Equal(boardFrom("x..", "...", "...")))
	assert.False(t, boardFrom("x..", "...", "...").Equal(boardFrom("o..", "...", "...")))
	assert.False(t, NewBoard(3).Equal(NewBoard(4)))
}
