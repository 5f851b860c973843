package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/rocketscienceinc/tictactoe-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-client/internal/config"
	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
	"github.com/rocketscienceinc/tictactoe-client/internal/repository"
	"github.com/rocketscienceinc/tictactoe-client/internal/repository/storage"
	"github.com/rocketscienceinc/tictactoe-client/internal/transport/rest"
	"github.com/rocketscienceinc/tictactoe-client/internal/transport/websocket"
	"github.com/rocketscienceinc/tictactoe-client/internal/usecase"
)

var (
	ErrAddrNotFound  = errors.New("redis address string is empty")
	ErrTokenNotFound = errors.New("api auth token is empty")
)

// RunApp - runs the headless match runner: it resumes or creates a
// vs-bot match and plays it to completion through the sync engine.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	if strings.TrimSpace(conf.API.AuthToken) == "" {
		return ErrTokenNotFound
	}

	redisAddrString := conf.Redis.GetRedisAddr()
	if redisAddrString == "" {
		return ErrAddrNotFound
	}

	redisStorage, err := storage.NewRedisStorage(ctx, redisAddrString)
	if err != nil {
		return fmt.Errorf("could not connect to redis storage: %w", err)
	}

	defer func() {
		if err = redisStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}()

	sessionRepo := repository.NewSessionRepository(redisStorage.Connection)

	clock := clockwork.NewRealClock()
	instanceID := uuid.NewString()

	restClient := rest.New(
		logger,
		conf.API.BaseURL,
		conf.API.AuthToken,
		rest.WithTurnTimeout(conf.Sync.GetTurnTimeout()),
		rest.WithClientID(instanceID),
	)

	channel := websocket.New(logger, clock, websocket.Config{
		URL:          conf.API.GetWebsocketURL(),
		ClientID:     instanceID,
		DialTimeout:  conf.Sync.GetConnectTimeout(),
		PingInterval: conf.Sync.GetPingInterval(),
		BackoffBase:  conf.Sync.GetReconnectBase(),
		BackoffCap:   conf.Sync.GetReconnectCap(),
		MaxAttempts:  conf.Sync.ReconnectMaxAttempts,
	})

	game, err := resumeOrCreateGame(ctx, log, restClient, sessionRepo, conf)
	if err != nil {
		return fmt.Errorf("could not get a game to play: %w", err)
	}

	log.Info("Tracking match", "game_id", game.ID, "type", game.Type, "status", game.Status)

	session := usecase.NewMatchSession(logger, restClient, channel, clock, game, game.Player1ID, conf.API.AuthToken, usecase.Config{
		PollInterval:   conf.Sync.GetPollInterval(),
		BotThinkDelay:  conf.Sync.GetBotThinkDelay(),
		MoveAckTimeout: conf.Sync.GetTurnTimeout(),
	})

	if err = session.Start(ctx); err != nil {
		return fmt.Errorf("could not start match session: %w", err)
	}
	defer session.Stop()

	return playToCompletion(ctx, log, session, sessionRepo, conf.API.AuthToken)
}

// resumeOrCreateGame prefers the match saved from a previous run, then
// any active match the server knows about, and only then creates a
// fresh vs-bot match.
func resumeOrCreateGame(
	ctx context.Context,
	log *slog.Logger,
	restClient *rest.Client,
	sessionRepo repository.SessionRepository,
	conf *config.Config,
) (*entity.Game, error) {
	sessionKey := conf.API.AuthToken

	if saved, err := sessionRepo.GetByClientID(ctx, sessionKey); err == nil {
		game, gameErr := restClient.GameByID(ctx, saved.GameID)
		if gameErr == nil && !game.IsTerminal() {
			log.Info("Resuming saved match", "game_id", game.ID)
			return game, nil
		}
		if delErr := sessionRepo.DeleteByClientID(ctx, sessionKey); delErr != nil {
			log.Warn("could not drop stale session", "error", delErr)
		}
	} else if !errors.Is(err, repository.ErrSessionNotFound) {
		log.Warn("could not read saved session", "error", err)
	}

	if game, err := restClient.SavedGame(ctx); err == nil && game != nil && !game.IsTerminal() {
		log.Info("Resuming active match from server", "game_id", game.ID)
		return game, nil
	}

	game, err := restClient.CreateBotGame(ctx, conf.Game.Difficulty, conf.Game.BoardSize)
	if err != nil {
		return nil, fmt.Errorf("could not create bot game: %w", err)
	}

	if err = sessionRepo.Save(ctx, sessionKey, &repository.Session{
		GameID:  game.ID,
		Token:   conf.API.AuthToken,
		SavedAt: time.Now(),
	}); err != nil {
		log.Warn("could not save session", "error", err)
	}

	return game, nil
}

// playToCompletion consumes the session's event stream, making a
// random legal move whenever it is our turn, until the match reaches a
// terminal phase.
func playToCompletion(
	ctx context.Context,
	log *slog.Logger,
	session *usecase.MatchSession,
	sessionRepo repository.SessionRepository,
	sessionKey string,
) error {
	tryMove(ctx, log, session)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-session.Events():
			switch event.Kind {
			case usecase.EventStateChanged:
				logBoard(log, event.Game)

				if event.Game.IsTerminal() {
					log.Info("Match finished", "status", event.Game.Status, "winner_id", event.Game.WinnerID, "moves", event.Game.TotalMoves)
					if err := sessionRepo.DeleteByClientID(ctx, sessionKey); err != nil {
						log.Warn("could not drop finished session", "error", err)
					}
					return nil
				}

				tryMove(ctx, log, session)

			case usecase.EventCountdown:
				log.Debug("turn countdown", "remaining", event.Remaining)

			case usecase.EventError:
				log.Warn("recoverable session error", "error", event.Err)

			case usecase.EventSessionDown:
				return fmt.Errorf("match session is down: %w", event.Err)
			}
		}
	}
}

func tryMove(ctx context.Context, log *slog.Logger, session *usecase.MatchSession) {
	game := session.Game()

	row, col, err := usecase.RandomFreeCell(game)
	if err != nil {
		return
	}

	if !session.CanSubmitMove(row, col) {
		return
	}

	if err := session.SubmitMove(ctx, row, col); err != nil {
		if errors.Is(err, apperror.ErrMoveInFlight) || errors.Is(err, apperror.ErrNotYourTurn) {
			return
		}
		log.Warn("move failed", "row", row, "col", col, "error", err)
		return
	}

	log.Info("Submitted move", "row", row, "col", col)
}

func logBoard(log *slog.Logger, game *entity.Game) {
	rows := make([]string, len(game.Board))
	for i, row := range game.Board {
		cells := make([]string, len(row))
		for j, cell := range row {
			if cell == entity.EmptyCell {
				cells[j] = "."
			} else {
				cells[j] = cell
			}
		}
		rows[i] = strings.Join(cells, " ")
	}

	log.Info("Board updated", "turn", game.Turn, "moves", game.TotalMoves, "board", strings.Join(rows, " | "))
}
