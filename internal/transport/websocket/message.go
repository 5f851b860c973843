package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rocketscienceinc/tictactoe-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
)

// Message types the game server speaks.
const (
	TypeMove      = "MOVE"
	TypeSurrender = "SURRENDER"

	TypeMoveAccepted = "MOVE_ACCEPTED"
	TypeMoveRejected = "MOVE_REJECTED"
	TypeOpponentMove = "OPPONENT_MOVE"
	TypeGameUpdate   = "GAME_UPDATE"
	TypeTimerUpdate  = "TIMER_UPDATE"
	TypeGameEnded    = "GAME_ENDED"
)

// Message is the envelope for every websocket exchange.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type MovePayload struct {
	Row          int    `json:"row"`
	Col          int    `json:"col"`
	PlayerSymbol string `json:"playerSymbol"`
}

// MoveAcceptedPayload confirms the sender's move; the same shape arrives
// as OPPONENT_MOVE on the other side of the match.
type MoveAcceptedPayload struct {
	Row                 int             `json:"row"`
	Col                 int             `json:"col"`
	PlayerSymbol        string          `json:"playerSymbol"`
	BoardState          json.RawMessage `json:"boardState"`
	CurrentPlayerSymbol string          `json:"currentPlayerSymbol"`
	NextMoveAt          time.Time       `json:"nextMoveAt"`
}

type MoveRejectedPayload struct {
	Reason string `json:"reason"`
	Code   string `json:"code"`
}

type GameUpdatePayload struct {
	GameID     int64           `json:"gameId"`
	Status     string          `json:"status"`
	Winner     *entity.Player  `json:"winner,omitempty"`
	BoardState json.RawMessage `json:"boardState"`
}

type TimerUpdatePayload struct {
	RemainingSeconds int `json:"remainingSeconds"`
}

type GameEndedPayload struct {
	GameID          int64           `json:"gameId"`
	Status          string          `json:"status"`
	Winner          *entity.Player  `json:"winner,omitempty"`
	FinalBoardState json.RawMessage `json:"finalBoardState"`
	TotalMoves      int             `json:"totalMoves"`
}

// Validate checks that the message is one of the known types and its
// payload decodes into the expected shape. Anything else is dropped by
// the channel before it reaches the reconciler.
func (that *Message) Validate() error {
	switch that.Type {
	case TypeMoveAccepted, TypeOpponentMove:
		_, err := that.MoveAccepted()
		return err
	case TypeMoveRejected:
		_, err := that.MoveRejected()
		return err
	case TypeGameUpdate:
		_, err := that.GameUpdate()
		return err
	case TypeTimerUpdate:
		_, err := that.TimerUpdate()
		return err
	case TypeGameEnded:
		_, err := that.GameEnded()
		return err
	case "":
		return fmt.Errorf("%w: missing message type", apperror.ErrMalformed)
	default:
		return fmt.Errorf("%w: unknown message type %q", apperror.ErrMalformed, that.Type)
	}
}

func (that *Message) MoveAccepted() (*MoveAcceptedPayload, error) {
	var payload MoveAcceptedPayload
	if err := json.Unmarshal(that.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %w", apperror.ErrMalformed, that.Type, err)
	}

	if payload.CurrentPlayerSymbol != entity.MarkX && payload.CurrentPlayerSymbol != entity.MarkO {
		return nil, fmt.Errorf("%w: %s has no turn mark", apperror.ErrMalformed, that.Type)
	}

	return &payload, nil
}

func (that *Message) MoveRejected() (*MoveRejectedPayload, error) {
	var payload MoveRejectedPayload
	if err := json.Unmarshal(that.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %w", apperror.ErrMalformed, that.Type, err)
	}

	if payload.Reason == "" && payload.Code == "" {
		return nil, fmt.Errorf("%w: %s without reason or code", apperror.ErrMalformed, that.Type)
	}

	return &payload, nil
}

func (that *Message) GameUpdate() (*GameUpdatePayload, error) {
	var payload GameUpdatePayload
	if err := json.Unmarshal(that.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %w", apperror.ErrMalformed, that.Type, err)
	}

	if payload.GameID == 0 || payload.Status == "" {
		return nil, fmt.Errorf("%w: %s without game id or status", apperror.ErrMalformed, that.Type)
	}

	return &payload, nil
}

func (that *Message) TimerUpdate() (*TimerUpdatePayload, error) {
	var payload TimerUpdatePayload
	if err := json.Unmarshal(that.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %w", apperror.ErrMalformed, that.Type, err)
	}

	return &payload, nil
}

func (that *Message) GameEnded() (*GameEndedPayload, error) {
	var payload GameEndedPayload
	if err := json.Unmarshal(that.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %w", apperror.ErrMalformed, that.Type, err)
	}

	if payload.GameID == 0 || payload.Status == "" {
		return nil, fmt.Errorf("%w: %s without game id or status", apperror.ErrMalformed, that.Type)
	}

	return &payload, nil
}

