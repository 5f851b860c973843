package entity

import (
	"encoding/json"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-client/internal/apperror"
)

// Board is a square grid of marks; EmptyCell means the cell is free.
type Board [][]string

func NewBoard(size int) Board {
	board := make(Board, size)
	for row := range board {
		board[row] = make([]string, size)
	}

	return board
}

func (that Board) Size() int {
	return len(that)
}

func (that Board) Equal(other Board) bool {
	if len(that) != len(other) {
		return false
	}

	for row := range that {
		if len(that[row]) != len(other[row]) {
			return false
		}
		for col := range that[row] {
			if that[row][col] != other[row][col] {
				return false
			}
		}
	}

	return true
}

func (that Board) Clone() Board {
	clone := make(Board, len(that))
	for row := range that {
		clone[row] = make([]string, len(that[row]))
		copy(clone[row], that[row])
	}

	return clone
}

// OccupiedCells counts placed marks; it must always equal the move count.
func (that Board) OccupiedCells() int {
	count := 0
	for row := range that {
		for col := range that[row] {
			if that[row][col] != EmptyCell {
				count++
			}
		}
	}

	return count
}

// boardEnvelope is the wrapped wire form some server revisions send.
type boardEnvelope struct {
	State [][]*string `json:"state"`
}

// NormalizeBoard accepts both wire forms of a board - a flat 2-D array
// of mark-or-null tokens or a {state: [...]} envelope - and produces
// the canonical board. Unknown tokens become empty cells.
func NormalizeBoard(raw json.RawMessage) (Board, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty board state", apperror.ErrMalformed)
	}

	var flat [][]*string
	if err := json.Unmarshal(raw, &flat); err != nil {
		var envelope boardEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil || envelope.State == nil {
			return nil, fmt.Errorf("%w: unrecognized board state", apperror.ErrMalformed)
		}
		flat = envelope.State
	}

	board := make(Board, len(flat))
	for row := range flat {
		board[row] = make([]string, len(flat[row]))
		for col, cell := range flat[row] {
			if cell == nil {
				continue
			}
			if *cell == MarkX || *cell == MarkO {
				board[row][col] = *cell
			}
		}
	}

	return board, nil
}
