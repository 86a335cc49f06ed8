package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/embergrid/skirmish-backend/internal/entity"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRepository keeps the latest authoritative snapshot per session so a
// reconnecting replica can catch up before broadcasts resume. Only the
// current snapshot is kept, never history.
type SessionRepository interface {
	CreateOrUpdate(ctx context.Context, sessionID string, state *entity.GameState) error
	GetByID(ctx context.Context, sessionID string) (*entity.GameState, error)
	DeleteByID(ctx context.Context, sessionID string) error
}

type dbSession struct {
	client *redis.Client
}

func NewSessionRepository(client *redis.Client) SessionRepository {
	return &dbSession{
		client: client,
	}
}

func (that *dbSession) CreateOrUpdate(ctx context.Context, sessionID string, state *entity.GameState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("could not marshal session state: %w", err)
	}

	sessionKey := "session:" + sessionID
	if err = that.client.Set(ctx, sessionKey, stateJSON, 0).Err(); err != nil {
		return fmt.Errorf("failed to set session state: %w", err)
	}

	return nil
}

func (that *dbSession) GetByID(ctx context.Context, sessionID string) (*entity.GameState, error) {
	sessionKey := "session:" + sessionID

	response, err := that.client.Get(ctx, sessionKey).Result()

	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get session state: %w", err)
	}

	var state entity.GameState
	if err = json.Unmarshal([]byte(response), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session state: %w", err)
	}

	return &state, nil
}

func (that *dbSession) DeleteByID(ctx context.Context, sessionID string) error {
	sessionKey := "session:" + sessionID

	if err := that.client.Del(ctx, sessionKey).Err(); err != nil {
		return fmt.Errorf("failed to delete session by ID: %w", err)
	}

	return nil
}
