package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("session not found")

const sessionTTL = 24 * time.Hour

// Session is the persisted reference to a player's active match, so a
// restarted client can resume instead of abandoning the game.
type Session struct {
	GameID  int64     `json:"game_id"`
	Token   string    `json:"token"`
	SavedAt time.Time `json:"saved_at"`
}

type SessionRepository interface {
	Save(ctx context.Context, clientID string, session *Session) error
	GetByClientID(ctx context.Context, clientID string) (*Session, error)
	DeleteByClientID(ctx context.Context, clientID string) error
}

type dbSession struct {
	client *redis.Client
}

func NewSessionRepository(client *redis.Client) SessionRepository {
	return &dbSession{
		client: client,
	}
}

func (that *dbSession) Save(ctx context.Context, clientID string, session *Session) error {
	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("could not marshal session: %w", err)
	}

	sessionKey := "session:" + clientID
	if err = that.client.Set(ctx, sessionKey, sessionJSON, sessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}

	return nil
}

func (that *dbSession) GetByClientID(ctx context.Context, clientID string) (*Session, error) {
	sessionKey := "session:" + clientID

	response, err := that.client.Get(ctx, sessionKey).Result()

	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session Session
	if err = json.Unmarshal([]byte(response), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

func (that *dbSession) DeleteByClientID(ctx context.Context, clientID string) error {
	sessionKey := "session:" + clientID

	if err := that.client.Del(ctx, sessionKey).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}
