package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rocketscienceinc/tictactoe-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-client/internal/deadline"
	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
	"github.com/rocketscienceinc/tictactoe-client/internal/reconciler"
	"github.com/rocketscienceinc/tictactoe-client/internal/transport/websocket"
)

type gameClient interface {
	GameByID(ctx context.Context, gameID int64) (*entity.Game, error)
	MakeMove(ctx context.Context, gameID int64, row, col int, mark string) (*entity.Game, error)
	MakeBotMove(ctx context.Context, gameID int64) (*entity.Game, error)
	Surrender(ctx context.Context, gameID int64) error
}

type transportChannel interface {
	Connect(ctx context.Context, gameID int64, token string) error
	Disconnect()
	Send(ctx context.Context, msgType string, payload any) error
	Inbound() <-chan websocket.Inbound
	SetOnOpen(callback func())
	IsOpen() bool
}

type Config struct {
	PollInterval  time.Duration
	BotThinkDelay time.Duration
	// MoveAckTimeout bounds how long a sent pvp move may wait for its
	// verdict before the pending guard is released again.
	MoveAckTimeout time.Duration
	// StartPollBudget bounds how long a waiting pvp match is polled
	// before giving up on an opponent showing up.
	StartPollBudget int
}

// MatchSession drives one match to completion: it merges the websocket
// stream, the polling fallback and local input through the reconciler,
// keeps the turn countdown armed and schedules automated bot replies.
type MatchSession struct {
	logger *slog.Logger

	games     gameClient
	channel   transportChannel
	clock     clockwork.Clock
	recon     *reconciler.Reconciler
	countdown *deadline.Clock
	conf      Config

	gameID int64
	token  string

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	botBusy atomic.Bool
	frozen  atomic.Bool
	moveSeq atomic.Uint64

	events chan Event
}

func NewMatchSession(
	logger *slog.Logger,
	games gameClient,
	channel transportChannel,
	clock clockwork.Clock,
	game *entity.Game,
	localPlayerID int64,
	token string,
	conf Config,
) *MatchSession {
	if conf.PollInterval <= 0 {
		conf.PollInterval = 2 * time.Second
	}
	if conf.BotThinkDelay <= 0 {
		conf.BotThinkDelay = 200 * time.Millisecond
	}
	if conf.MoveAckTimeout <= 0 {
		conf.MoveAckTimeout = 10 * time.Second
	}
	if conf.StartPollBudget <= 0 {
		conf.StartPollBudget = 10
	}

	return &MatchSession{
		logger:    logger.With("component", "match-session", "game_id", game.ID),
		games:     games,
		channel:   channel,
		clock:     clock,
		recon:     reconciler.New(logger, game, localPlayerID),
		countdown: deadline.New(logger, clock),
		conf:      conf,
		gameID:    game.ID,
		token:     token,
		events:    make(chan Event, 16),
	}
}

func (that *MatchSession) Events() <-chan Event {
	return that.events
}

func (that *MatchSession) Game() *entity.Game {
	return that.recon.Snapshot()
}

func (that *MatchSession) CanSubmitMove(row, col int) bool {
	return that.recon.CanSubmitMove(row, col)
}

func (that *MatchSession) WinningCells() []entity.Cell {
	return that.recon.WinningCells()
}

// Start spins up the synchronization loops. It returns once the match
// is being tracked; progress is reported on the event stream.
func (that *MatchSession) Start(ctx context.Context) error {
	that.ctx, that.cancel = context.WithCancel(ctx)

	game := that.recon.Snapshot()

	if game.IsPvP() && game.IsWaiting() {
		game = that.waitForStart(that.ctx)
	}

	if game.IsPvP() && game.IsInProgress() {
		if err := that.channel.Connect(that.ctx, that.gameID, that.token); err != nil {
			// the channel keeps retrying with backoff; polling covers the gap
			that.logger.Warn("initial websocket connect failed", "error", err)
		}
		if !game.Deadline.IsZero() {
			that.countdown.Arm(game.Deadline)
		}
	}

	that.channel.SetOnOpen(func() {
		// a reopen means the verdict for any in-flight move is lost
		// for good; release the guard before re-synchronizing
		that.recon.FinishMove()
		// catch whatever was missed while the channel was down
		that.syncOnce(that.ctx)
	})

	that.wg.Add(4)
	go that.runCountdown()
	go that.inboundLoop()
	go that.pollLoop()
	go that.updatesLoop()

	// a vs-bot match may already be waiting on the automated reply
	that.maybeScheduleBot(game)

	return nil
}

// Stop tears the session down: the countdown, any scheduled bot
// trigger and the websocket session all die with it.
func (that *MatchSession) Stop() {
	if that.cancel != nil {
		that.cancel()
	}
	that.countdown.Disarm()
	that.channel.Disconnect()
	that.wg.Wait()
}

// SubmitMove validates and dispatches the local participant's move:
// over REST for bot matches, as a MOVE message for pvp. The pending
// guard stays set until an authoritative response is observed.
func (that *MatchSession) SubmitMove(ctx context.Context, row, col int) error {
	if that.frozen.Load() {
		return apperror.ErrExhausted
	}

	if err := that.recon.BeginMove(row, col); err != nil {
		return err
	}

	game := that.recon.Snapshot()
	mark := that.recon.LocalMark()

	if game.IsPvP() {
		payload := websocket.MovePayload{Row: row, Col: col, PlayerSymbol: mark}
		if err := that.channel.Send(ctx, websocket.TypeMove, payload); err != nil {
			that.recon.FinishMove()
			return fmt.Errorf("failed to send move: %w", err)
		}
		// guard clears when MOVE_ACCEPTED or MOVE_REJECTED arrives;
		// the watchdog covers a frame that is lost on the wire
		that.watchMoveVerdict()

		return nil
	}

	updated, err := that.games.MakeMove(ctx, game.ID, row, col, mark)
	if err != nil {
		that.recon.FinishMove()
		return fmt.Errorf("failed to make move: %w", err)
	}

	that.recon.Apply(reconciler.FullReplace{Game: updated})
	that.recon.FinishMove()

	return nil
}

// watchMoveVerdict releases the pending guard when a sent move never
// gets a verdict, so a frame lost on the wire cannot lock the
// participant out of moving. A guard released or re-taken by a newer
// submission leaves the stale watchdog a no-op.
func (that *MatchSession) watchMoveVerdict() {
	seq := that.moveSeq.Add(1)

	var done <-chan struct{}
	if that.ctx != nil {
		done = that.ctx.Done()
	}

	that.wg.Add(1)
	go func() {
		defer that.wg.Done()

		select {
		case <-done:
			return
		case <-that.clock.After(that.conf.MoveAckTimeout):
		}

		if that.moveSeq.Load() != seq || !that.recon.PendingMove() {
			return
		}

		that.logger.Warn("no verdict for submitted move, releasing the guard")
		that.recon.FinishMove()
		that.emit(Event{Kind: EventError, Err: fmt.Errorf("%w: no verdict for submitted move", apperror.ErrTimeout)})
	}()
}

func (that *MatchSession) Surrender(ctx context.Context) error {
	game := that.recon.Snapshot()

	if game.IsPvP() {
		if err := that.channel.Send(ctx, websocket.TypeSurrender, struct{}{}); err != nil {
			return fmt.Errorf("failed to send surrender: %w", err)
		}
		return nil
	}

	if err := that.games.Surrender(ctx, game.ID); err != nil {
		return fmt.Errorf("failed to surrender: %w", err)
	}

	that.syncOnce(ctx)

	return nil
}

// waitForStart polls a waiting pvp match once a second until an
// opponent joins or the budget runs out.
func (that *MatchSession) waitForStart(ctx context.Context) *entity.Game {
	ticker := that.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for attempt := 0; attempt < that.conf.StartPollBudget; attempt++ {
		select {
		case <-ctx.Done():
			return that.recon.Snapshot()
		case <-ticker.Chan():
		}

		game, err := that.games.GameByID(ctx, that.gameID)
		if err != nil {
			that.logger.Warn("poll while waiting for opponent failed", "error", err)
			continue
		}

		that.recon.Apply(reconciler.FullReplace{Game: game})
		if !game.IsWaiting() {
			return that.recon.Snapshot()
		}
	}

	that.emit(Event{Kind: EventError, Err: fmt.Errorf("%w: no opponent joined", apperror.ErrTimeout)})

	return that.recon.Snapshot()
}

func (that *MatchSession) runCountdown() {
	defer that.wg.Done()
	that.countdown.Run(that.ctx)
}

func (that *MatchSession) inboundLoop() {
	defer that.wg.Done()

	for {
		select {
		case <-that.ctx.Done():
			return
		case inbound := <-that.channel.Inbound():
			if inbound.Err != nil {
				// reconnection gave up; freeze the view
				that.frozen.Store(true)
				that.countdown.Disarm()
				that.emit(Event{Kind: EventSessionDown, Err: inbound.Err})
				continue
			}
			that.handleMessage(inbound.Message)
		}
	}
}

func (that *MatchSession) pollLoop() {
	defer that.wg.Done()

	ticker := that.clock.NewTicker(that.conf.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-that.ctx.Done():
			return
		case <-ticker.Chan():
			if that.frozen.Load() {
				continue
			}
			that.syncOnce(that.ctx)
		}
	}
}

func (that *MatchSession) updatesLoop() {
	defer that.wg.Done()

	for {
		select {
		case <-that.ctx.Done():
			return
		case remaining := <-that.countdown.Remaining():
			that.emit(Event{Kind: EventCountdown, Remaining: remaining})
		case <-that.countdown.Expired():
			// the server owns timeouts; force one re-synchronization
			// instead of declaring anything locally
			that.syncOnce(that.ctx)
		case game := <-that.recon.Updates():
			that.emit(Event{Kind: EventStateChanged, Game: game})

			if game.IsTerminal() {
				that.countdown.Disarm()
				continue
			}

			if game.IsPvP() && game.IsInProgress() {
				if !that.channel.IsOpen() && !that.frozen.Load() {
					if err := that.channel.Connect(that.ctx, that.gameID, that.token); err != nil {
						that.logger.Warn("websocket connect failed", "error", err)
					}
				}
				if !game.Deadline.IsZero() {
					that.countdown.Arm(game.Deadline)
				}
			}

			that.maybeScheduleBot(game)
		}
	}
}

// syncOnce fetches the authoritative snapshot once and funnels it
// through the reconciler, which drops it when nothing changed.
func (that *MatchSession) syncOnce(ctx context.Context) {
	game, err := that.games.GameByID(ctx, that.gameID)
	if err != nil {
		that.logger.Debug("poll failed", "error", err)
		return
	}

	that.recon.Apply(reconciler.FullReplace{Game: game})
}

func (that *MatchSession) handleMessage(message *websocket.Message) {
	log := that.logger.With("method", "handleMessage", "type", message.Type)

	switch message.Type {
	case websocket.TypeMoveAccepted, websocket.TypeOpponentMove:
		payload, err := message.MoveAccepted()
		if err != nil {
			log.Warn("dropping message", "error", err)
			return
		}

		mark := payload.PlayerSymbol
		if mark == "" {
			mark = entity.ToggleMark(payload.CurrentPlayerSymbol)
		}

		that.recon.Apply(reconciler.MoveApplied{
			Row:      payload.Row,
			Col:      payload.Col,
			Mark:     mark,
			NextTurn: payload.CurrentPlayerSymbol,
			Deadline: payload.NextMoveAt,
		})

	case websocket.TypeMoveRejected:
		payload, err := message.MoveRejected()
		if err != nil {
			log.Warn("dropping message", "error", err)
			return
		}

		that.recon.FinishMove()
		that.emit(Event{Kind: EventError, Err: &apperror.RejectedError{Code: payload.Code, Reason: payload.Reason}})

	case websocket.TypeGameUpdate:
		payload, err := message.GameUpdate()
		if err != nil {
			log.Warn("dropping message", "error", err)
			return
		}
		that.applyStatusUpdate(payload.GameID, payload.Status, payload.Winner, payload.BoardState, 0)

	case websocket.TypeGameEnded:
		payload, err := message.GameEnded()
		if err != nil {
			log.Warn("dropping message", "error", err)
			return
		}
		that.applyStatusUpdate(payload.GameID, payload.Status, payload.Winner, payload.FinalBoardState, payload.TotalMoves)

	case websocket.TypeTimerUpdate:
		payload, err := message.TimerUpdate()
		if err != nil {
			log.Warn("dropping message", "error", err)
			return
		}

		remaining := time.Duration(payload.RemainingSeconds) * time.Second
		that.countdown.Arm(that.clock.Now().Add(remaining))
		that.emit(Event{Kind: EventCountdown, Remaining: remaining})

	default:
		log.Warn("dropping unexpected message")
	}
}

func (that *MatchSession) applyStatusUpdate(gameID int64, status string, winner *entity.Player, rawBoard []byte, totalMoves int) {
	if gameID != that.gameID {
		that.logger.Warn("dropping update for another match", "got", gameID)
		return
	}

	board, err := entity.NormalizeBoard(rawBoard)
	if err != nil {
		that.logger.Warn("dropping update with bad board", "error", err)
		return
	}

	var winnerID int64
	if winner != nil {
		winnerID = winner.ID
	}

	probe := entity.Game{Status: status}
	if probe.IsTerminal() {
		that.recon.Apply(reconciler.OutcomeChanged{
			Status:     status,
			WinnerID:   winnerID,
			Board:      board,
			TotalMoves: totalMoves,
		})
		return
	}

	// non-terminal push: merge into the current view; occupied cells
	// track the move count one to one
	next := that.recon.Snapshot()
	next.Status = status
	next.Board = board
	next.WinnerID = winnerID
	next.TotalMoves = board.OccupiedCells()
	that.recon.Apply(reconciler.FullReplace{Game: next})
}

func (that *MatchSession) emit(event Event) {
	select {
	case that.events <- event:
	default:
		that.logger.Debug("event buffer full, dropping", "kind", event.Kind)
	}
}
