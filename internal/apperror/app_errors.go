package apperror

import (
	"errors"
	"fmt"
)

var (
	// Network-facing failures.
	ErrTransportUnavailable = errors.New("transport is not connected")
	ErrTimeout              = errors.New("request timed out")
	ErrRejected             = errors.New("move rejected by server")
	ErrMalformed            = errors.New("malformed payload")
	ErrExhausted            = errors.New("reconnect attempts exhausted")

	// Local precondition failures - these never reach the network.
	ErrGameFinished    = errors.New("game is already finished")
	ErrNotYourTurn     = errors.New("it's not your turn")
	ErrCellOccupied    = errors.New("cell is already occupied")
	ErrMoveInFlight    = errors.New("a move is already in flight")
	ErrInvalidCell     = errors.New("invalid cell index")
	ErrInvalidArgument = errors.New("invalid argument")
)

// RejectedError carries the server's verbatim rejection of a move.
type RejectedError struct {
	Code   string
	Reason string
}

func (that *RejectedError) Error() string {
	return fmt.Sprintf("move rejected: %s (%s)", that.Reason, that.Code)
}

func (that *RejectedError) Unwrap() error {
	return ErrRejected
}
