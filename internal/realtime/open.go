package realtime

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var ErrUnknownBroker = errors.New("realtime: unknown broker")

// Open builds the broker named by kind: memory, redis or postgres. Redis needs
// rdb; postgres needs db and the DSN its listener connects with.
func Open(kind string, db *gorm.DB, dsn string, rdb *redis.Client, log *slog.Logger) (Broker, error) {
	switch kind {
	case "", "memory":
		return NewMemoryBroker(), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis broker: no redis client")
		}
		return NewRedisBroker(rdb, log), nil
	case "postgres":
		b, err := NewPostgresBroker(db, dsn, log)
		if err != nil {
			return nil, fmt.Errorf("postgres broker: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBroker, kind)
	}
}
