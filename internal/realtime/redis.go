package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisBroker publishes each (table, org) pair on its own pub/sub channel, so
// filtering by org happens server-side.
type RedisBroker struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedisBroker(rdb *redis.Client, log *slog.Logger) *RedisBroker {
	return &RedisBroker{rdb: rdb, log: log}
}

func redisChannel(table, orgID string) string {
	return fmt.Sprintf("realtime:%s:%s", table, orgID)
}

func (b *RedisBroker) Publish(ctx context.Context, c Change) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding change: %w", err)
	}
	if err := b.rdb.Publish(ctx, redisChannel(c.Table, c.OrgID), data).Err(); err != nil {
		return fmt.Errorf("publishing change: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, table, orgID string) (<-chan Change, error) {
	pubsub := b.rdb.Subscribe(ctx, redisChannel(table, orgID))

	// Wait for the subscription to be confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", table, err)
	}

	out := make(chan Change, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var c Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					b.log.Warn("dropping malformed change", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- c:
				default:
					b.log.Warn("subscriber buffer full, dropping change", "table", c.Table, "org_id", c.OrgID)
				}
			}
		}
	}()

	return out, nil
}

// Close is a no-op; the redis client is owned by the caller.
func (b *RedisBroker) Close() error {
	return nil
}
