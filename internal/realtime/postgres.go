package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

const (
	notifyChannel = "realtime_changes"
	// Postgres rejects NOTIFY payloads of 8000 bytes or more.
	maxNotifyPayload = 7900
)

// PostgresBroker publishes changes with pg_notify on a single channel and
// listens with one pq.Listener, fanning notifications out in-process. Every
// instance of the service sees every change; routing by (table, org) happens
// locally.
type PostgresBroker struct {
	db       *gorm.DB
	listener *pq.Listener
	local    *MemoryBroker
	log      *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func NewPostgresBroker(db *gorm.DB, dsn string, log *slog.Logger) (*PostgresBroker, error) {
	listener := pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn("postgres listener event", "event", ev, "error", err)
		}
	})
	if err := listener.Listen(notifyChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listening on %s: %w", notifyChannel, err)
	}

	b := &PostgresBroker{
		db:       db,
		listener: listener,
		local:    NewMemoryBroker(),
		log:      log,
		done:     make(chan struct{}),
	}
	go b.run()

	return b, nil
}

func (b *PostgresBroker) run() {
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-b.done:
			return
		case n, ok := <-b.listener.Notify:
			if !ok {
				return
			}
			// nil after the listener reconnects; notifications sent while
			// disconnected are lost.
			if n == nil {
				b.log.Info("postgres listener reconnected")
				continue
			}
			var c Change
			if err := json.Unmarshal([]byte(n.Extra), &c); err != nil {
				b.log.Warn("dropping malformed notification", "error", err)
				continue
			}
			_ = b.local.Publish(context.Background(), c)
		case <-ping.C:
			go func() {
				if err := b.listener.Ping(); err != nil {
					b.log.Warn("postgres listener ping failed", "error", err)
				}
			}()
		}
	}
}

// encodeNotification renders c as a NOTIFY payload. HTML is left unescaped
// so sanitized notes do not grow sixfold on the wire.
func encodeNotification(c Change) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c); err != nil {
		return "", fmt.Errorf("encoding change: %w", err)
	}
	data := bytes.TrimRight(buf.Bytes(), "\n")
	if len(data) > maxNotifyPayload {
		return "", fmt.Errorf("%w: %d bytes on %s", ErrPayloadTooLarge, len(data), c.Table)
	}
	return string(data), nil
}

func (b *PostgresBroker) Publish(ctx context.Context, c Change) error {
	payload, err := encodeNotification(c)
	if err != nil {
		return err
	}
	if err := b.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", notifyChannel, payload).Error; err != nil {
		return fmt.Errorf("notifying change: %w", err)
	}
	return nil
}

func (b *PostgresBroker) Subscribe(ctx context.Context, table, orgID string) (<-chan Change, error) {
	return b.local.Subscribe(ctx, table, orgID)
}

func (b *PostgresBroker) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		_ = b.local.Close()
		err = b.listener.Close()
	})
	return err
}
