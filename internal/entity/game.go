package entity

import (
	"fmt"
	"time"

	"github.com/rocketscienceinc/tictactoe-client/internal/apperror"
)

const (
	StatusWaiting    = "waiting"
	StatusInProgress = "in_progress"
	StatusFinished   = "finished"
	StatusDraw       = "draw"
	StatusAbandoned  = "abandoned"

	MarkX = "x"
	MarkO = "o"

	EmptyCell = ""
)

const (
	PvPType     = "pvp"
	WithBotType = "vs_bot"
)

const (
	MinBoardSize = 3
	MaxBoardSize = 5
)

// Game is the authoritative view of one match as the server last reported it.
type Game struct {
	ID         int64     `json:"gameId"`
	Type       string    `json:"gameType"`
	BoardSize  int       `json:"boardSize"`
	Board      Board     `json:"boardState"`
	Status     string    `json:"status"`
	Turn       string    `json:"currentPlayerSymbol"`
	Player1ID  int64     `json:"player1Id"`
	Player2ID  int64     `json:"player2Id,omitempty"`
	WinnerID   int64     `json:"winnerId,omitempty"`
	TotalMoves int       `json:"totalMoves"`
	Deadline   time.Time `json:"lastMoveDeadline,omitempty"`
}

func NewGame(id int64, gameType string, boardSize int) *Game {
	return &Game{
		ID:        id,
		Type:      gameType,
		BoardSize: boardSize,
		Board:     NewBoard(boardSize),
		Status:    StatusWaiting,
	}
}

func (that *Game) IsWaiting() bool {
	return that.Status == StatusWaiting
}

func (that *Game) IsInProgress() bool {
	return that.Status == StatusInProgress
}

// IsTerminal reports whether the game reached a sticky final state.
func (that *Game) IsTerminal() bool {
	switch that.Status {
	case StatusFinished, StatusDraw, StatusAbandoned:
		return true
	default:
		return false
	}
}

func (that *Game) IsPvP() bool {
	return that.Type == PvPType
}

func (that *Game) IsWithBot() bool {
	return that.Type == WithBotType
}

func (that *Game) ValidateCell(row, col int) error {
	if row < 0 || row >= that.BoardSize || col < 0 || col >= that.BoardSize {
		return fmt.Errorf("%w: (%d,%d)", apperror.ErrInvalidCell, row, col)
	}

	return nil
}

func (that *Game) CellEmpty(row, col int) bool {
	if that.ValidateCell(row, col) != nil {
		return false
	}

	return that.Board[row][col] == EmptyCell
}

// MarkFor returns the fixed mark of the given participant: the first
// participant always plays x, the second o. Recomputed on every call,
// never cached from the opponent's view.
func (that *Game) MarkFor(playerID int64) string {
	switch playerID {
	case that.Player1ID:
		return MarkX
	case that.Player2ID:
		return MarkO
	default:
		return EmptyCell
	}
}

func (that *Game) Clone() *Game {
	clone := *that
	clone.Board = that.Board.Clone()

	return &clone
}

// ToggleMark returns the mark of the other participant.
func ToggleMark(mark string) string {
	if mark == MarkX {
		return MarkO
	}

	return MarkX
}

func ValidBoardSize(size int) bool {
	return size >= MinBoardSize && size <= MaxBoardSize
}
