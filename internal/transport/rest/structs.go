package rest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
)

type createGameRequest struct {
	GameType      string `json:"gameType"`
	BotDifficulty string `json:"botDifficulty,omitempty"`
	BoardSize     int    `json:"boardSize"`
}

type makeMoveRequest struct {
	Row          int    `json:"row"`
	Col          int    `json:"col"`
	PlayerSymbol string `json:"playerSymbol"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type savedGameResponse struct {
	Content []gameResponse `json:"content"`
}

// gameResponse mirrors the server's match snapshot. Participants may
// arrive nested or as flat ids depending on the endpoint.
type gameResponse struct {
	GameID              int64           `json:"gameId"`
	GameType            string          `json:"gameType"`
	BoardSize           int             `json:"boardSize"`
	Status              string          `json:"status"`
	BoardState          json.RawMessage `json:"boardState"`
	Player1             *entity.Player  `json:"player1,omitempty"`
	Player2             *entity.Player  `json:"player2,omitempty"`
	Player1ID           int64           `json:"player1Id,omitempty"`
	Player2ID           int64           `json:"player2Id,omitempty"`
	Winner              *entity.Player  `json:"winner,omitempty"`
	WinnerID            int64           `json:"winnerId,omitempty"`
	CurrentPlayerSymbol string          `json:"currentPlayerSymbol"`
	LastMoveAt          *time.Time      `json:"lastMoveAt,omitempty"`
	TotalMoves          int             `json:"totalMoves"`
}

type errorResponse struct {
	Message string `json:"message,omitempty"`
	Error   *struct {
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
}

func (that *errorResponse) message() string {
	if that.Error != nil && that.Error.Message != "" {
		return that.Error.Message
	}

	return that.Message
}

func (that *gameResponse) toGame(turnTimeout time.Duration) (*entity.Game, error) {
	board, err := entity.NormalizeBoard(that.BoardState)
	if err != nil {
		if that.TotalMoves > 0 {
			return nil, fmt.Errorf("snapshot of game %d: %w", that.GameID, err)
		}
		board = entity.NewBoard(that.BoardSize)
	}

	boardSize := that.BoardSize
	if boardSize == 0 {
		boardSize = board.Size()
	}

	game := &entity.Game{
		ID:         that.GameID,
		Type:       that.GameType,
		BoardSize:  boardSize,
		Board:      board,
		Status:     that.Status,
		Turn:       that.CurrentPlayerSymbol,
		Player1ID:  that.Player1ID,
		Player2ID:  that.Player2ID,
		WinnerID:   that.WinnerID,
		TotalMoves: that.TotalMoves,
	}

	if that.Player1 != nil {
		game.Player1ID = that.Player1.ID
	}
	if that.Player2 != nil {
		game.Player2ID = that.Player2.ID
	}
	if that.Winner != nil {
		game.WinnerID = that.Winner.ID
	}

	// a player-vs-player turn has a finite budget counted from the
	// last accepted move
	if game.IsPvP() && game.IsInProgress() && that.LastMoveAt != nil {
		game.Deadline = that.LastMoveAt.Add(turnTimeout)
	}

	return game, nil
}
