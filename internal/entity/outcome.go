package entity

// Cell addresses one board position.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Outcome is the result of scanning a board for a finished position.
type Outcome struct {
	Winner string
	Line   []Cell
	Draw   bool
}

func (that Outcome) None() bool {
	return that.Winner == EmptyCell && !that.Draw
}

// DetectOutcome scans all rows, then all columns, then the two full
// diagonals and returns the first line held entirely by one mark. The
// scan order is fixed so results are deterministic. A full board with
// no winning line is a draw.
func DetectOutcome(board Board) Outcome {
	size := board.Size()

	for row := 0; row < size; row++ {
		line := make([]Cell, size)
		for col := 0; col < size; col++ {
			line[col] = Cell{Row: row, Col: col}
		}
		if mark, ok := sameMark(board, line); ok {
			return Outcome{Winner: mark, Line: line}
		}
	}

	for col := 0; col < size; col++ {
		line := make([]Cell, size)
		for row := 0; row < size; row++ {
			line[row] = Cell{Row: row, Col: col}
		}
		if mark, ok := sameMark(board, line); ok {
			return Outcome{Winner: mark, Line: line}
		}
	}

	diagonal := make([]Cell, size)
	for i := 0; i < size; i++ {
		diagonal[i] = Cell{Row: i, Col: i}
	}
	if mark, ok := sameMark(board, diagonal); ok {
		return Outcome{Winner: mark, Line: diagonal}
	}

	antiDiagonal := make([]Cell, size)
	for i := 0; i < size; i++ {
		antiDiagonal[i] = Cell{Row: i, Col: size - 1 - i}
	}
	if mark, ok := sameMark(board, antiDiagonal); ok {
		return Outcome{Winner: mark, Line: antiDiagonal}
	}

	if board.OccupiedCells() == size*size {
		return Outcome{Draw: true}
	}

	return Outcome{}
}

func sameMark(board Board, line []Cell) (string, bool) {
	first := board[line[0].Row][line[0].Col]
	if first == EmptyCell {
		return EmptyCell, false
	}

	for _, cell := range line[1:] {
		if board[cell.Row][cell.Col] != first {
			return EmptyCell, false
		}
	}

	return first, true
}
