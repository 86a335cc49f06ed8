// Package redischan carries authoritative broadcasts between the host and
// the replica over a redis pub/sub channel. Redis delivers per-channel
// messages in publish order without duplication, which matches the ordering
// assumptions of the reconciliation protocol.
package redischan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/embergrid/skirmish-backend/internal/entity"
)

type Channel struct {
	logger  *slog.Logger
	client  *redis.Client
	session string
}

func New(logger *slog.Logger, client *redis.Client, sessionID string) *Channel {
	return &Channel{
		logger:  logger.With("component", "redischan"),
		client:  client,
		session: sessionID,
	}
}

func (that *Channel) topic() string {
	return "session:" + that.session + ":broadcast"
}

// Publish sends a broadcast to the session channel.
func (that *Channel) Publish(ctx context.Context, broadcast entity.Broadcast) error {
	payload, err := json.Marshal(broadcast)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast: %w", err)
	}

	if err = that.client.Publish(ctx, that.topic(), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish broadcast: %w", err)
	}

	return nil
}

// Subscribe returns a channel of decoded broadcasts. The channel closes when
// the context is canceled.
func (that *Channel) Subscribe(ctx context.Context) (<-chan entity.Broadcast, error) {
	pubsub := that.client.Subscribe(ctx, that.topic())

	// confirm the subscription before handing the channel out
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", that.topic(), err)
	}

	out := make(chan entity.Broadcast)

	go func() {
		defer close(out)
		defer func() {
			if err := pubsub.Close(); err != nil {
				that.logger.Error("failed to close subscription", "error", err)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case message, ok := <-pubsub.Channel():
				if !ok {
					return
				}

				var broadcast entity.Broadcast
				if err := json.Unmarshal([]byte(message.Payload), &broadcast); err != nil {
					that.logger.Error("failed to unmarshal broadcast", "error", err)
					continue
				}

				select {
				case out <- broadcast:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
