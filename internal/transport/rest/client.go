package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/rocketscienceinc/tictactoe-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-client/internal/entity"
)

// Client consumes the game server's REST contract: match snapshots,
// move submission for bot matches, the automated reply and surrender.
type Client struct {
	logger *slog.Logger

	baseURL   string
	authToken string
	clientID  string

	http        *fasthttp.Client
	timeout     time.Duration
	turnTimeout time.Duration
}

type Option func(*Client)

func WithTimeout(timeout time.Duration) Option {
	return func(that *Client) { that.timeout = timeout }
}

// WithTurnTimeout sets the per-turn budget used to derive a deadline
// from the server's lastMoveAt timestamp.
func WithTurnTimeout(timeout time.Duration) Option {
	return func(that *Client) { that.turnTimeout = timeout }
}

func WithClientID(clientID string) Option {
	return func(that *Client) { that.clientID = clientID }
}

func New(logger *slog.Logger, baseURL, authToken string, opts ...Option) *Client {
	client := &Client{
		logger:      logger.With("component", "rest-client"),
		baseURL:     strings.TrimRight(baseURL, "/"),
		authToken:   authToken,
		http:        &fasthttp.Client{MaxConnsPerHost: 16},
		timeout:     10 * time.Second,
		turnTimeout: 10 * time.Second,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// SavedGame returns the most recent waiting or in-progress match of
// the authenticated player, or nil when there is none.
func (that *Client) SavedGame(ctx context.Context) (*entity.Game, error) {
	path := "/v1/games?status=waiting&status=in_progress&size=1&sort=updatedAt,desc"

	var response savedGameResponse
	if err := that.doJSON(ctx, fasthttp.MethodGet, path, nil, &response); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if len(response.Content) == 0 {
		return nil, nil
	}

	return response.Content[0].toGame(that.turnTimeout)
}

func (that *Client) GameByID(ctx context.Context, gameID int64) (*entity.Game, error) {
	if gameID <= 0 {
		return nil, fmt.Errorf("%w: game id must be positive", apperror.ErrInvalidArgument)
	}

	var response gameResponse
	if err := that.doJSON(ctx, fasthttp.MethodGet, fmt.Sprintf("/v1/games/%d", gameID), nil, &response); err != nil {
		return nil, err
	}

	return response.toGame(that.turnTimeout)
}

func (that *Client) CreateBotGame(ctx context.Context, difficulty string, boardSize int) (*entity.Game, error) {
	if !entity.ValidBoardSize(boardSize) {
		return nil, fmt.Errorf("%w: board size must be %d..%d", apperror.ErrInvalidArgument, entity.MinBoardSize, entity.MaxBoardSize)
	}

	request := createGameRequest{
		GameType:      entity.WithBotType,
		BotDifficulty: difficulty,
		BoardSize:     boardSize,
	}

	var response gameResponse
	if err := that.doJSON(ctx, fasthttp.MethodPost, "/v1/games", request, &response); err != nil {
		return nil, err
	}

	return response.toGame(that.turnTimeout)
}

func (that *Client) CreatePvPGame(ctx context.Context, boardSize int) (*entity.Game, error) {
	if !entity.ValidBoardSize(boardSize) {
		return nil, fmt.Errorf("%w: board size must be %d..%d", apperror.ErrInvalidArgument, entity.MinBoardSize, entity.MaxBoardSize)
	}

	request := createGameRequest{
		GameType:  entity.PvPType,
		BoardSize: boardSize,
	}

	var response gameResponse
	if err := that.doJSON(ctx, fasthttp.MethodPost, "/v1/games", request, &response); err != nil {
		return nil, err
	}

	return response.toGame(that.turnTimeout)
}

// MakeMove submits one move and returns the resulting snapshot. Some
// server revisions answer with an empty body, in which case the
// snapshot is fetched separately.
func (that *Client) MakeMove(ctx context.Context, gameID int64, row, col int, mark string) (*entity.Game, error) {
	if mark != entity.MarkX && mark != entity.MarkO {
		return nil, fmt.Errorf("%w: mark must be x or o", apperror.ErrInvalidArgument)
	}

	request := makeMoveRequest{Row: row, Col: col, PlayerSymbol: mark}

	var response gameResponse
	if err := that.doJSON(ctx, fasthttp.MethodPost, fmt.Sprintf("/v1/games/%d/moves", gameID), request, &response); err != nil {
		return nil, err
	}

	if response.GameID == 0 || response.Status == "" {
		return that.GameByID(ctx, gameID)
	}

	return response.toGame(that.turnTimeout)
}

// MakeBotMove asks the server to play the automated reply, then
// fetches the updated snapshot.
func (that *Client) MakeBotMove(ctx context.Context, gameID int64) (*entity.Game, error) {
	if err := that.doJSON(ctx, fasthttp.MethodPost, fmt.Sprintf("/v1/games/%d/bot-move", gameID), struct{}{}, nil); err != nil {
		return nil, err
	}

	return that.GameByID(ctx, gameID)
}

func (that *Client) Surrender(ctx context.Context, gameID int64) error {
	request := updateStatusRequest{Status: entity.StatusAbandoned}

	return that.doJSON(ctx, fasthttp.MethodPut, fmt.Sprintf("/v1/games/%d/status", gameID), request, nil)
}

var errNotFound = errors.New("not found")

func (that *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(that.baseURL + path)
	req.Header.SetContentType("application/json")
	if that.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+that.authToken)
	}
	if that.clientID != "" {
		req.Header.Set("X-Client-Id", that.clientID)
	}

	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("could not marshal request body: %w", err)
		}
		req.SetBody(body)
	}

	timeout := that.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}

	if err := that.http.DoTimeout(req, resp, timeout); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			return fmt.Errorf("%w: %s %s", apperror.ErrTimeout, method, path)
		}
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}

	status := resp.StatusCode()
	if status == fasthttp.StatusNotFound {
		return fmt.Errorf("%w: %s %s", errNotFound, method, path)
	}
	if status >= fasthttp.StatusBadRequest {
		return that.toAPIError(status, resp.Body())
	}

	if out == nil || len(resp.Body()) == 0 {
		return nil
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: response body: %w", apperror.ErrMalformed, err)
	}

	return nil
}

// toAPIError maps a 4xx move refusal onto the rejection taxonomy so
// the caller can surface the server's reason verbatim.
func (that *Client) toAPIError(status int, body []byte) error {
	var payload errorResponse
	_ = json.Unmarshal(body, &payload)

	reason := payload.message()
	if reason == "" {
		reason = fasthttp.StatusMessage(status)
	}

	if status >= fasthttp.StatusInternalServerError {
		return fmt.Errorf("server error %d: %s", status, reason)
	}

	return &apperror.RejectedError{Code: fmt.Sprintf("%d", status), Reason: reason}
}
