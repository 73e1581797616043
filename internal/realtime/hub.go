package realtime

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

type topicKey struct {
	table string
	orgID string
}

type topic struct {
	cancel    context.CancelFunc
	listeners map[chan Change]struct{}
}

// Hub shares one upstream feed per (table, org) among every mirror that
// subscribes to it, and collapses concurrent hydration reads for the same
// pair. It satisfies both Subscriber and Loader, so a Mirror can use it in
// place of a broker and a loader.
type Hub struct {
	feed   Subscriber
	loader Loader
	log    *slog.Logger
	group  singleflight.Group

	mu     sync.Mutex
	topics map[topicKey]*topic
}

func NewHub(feed Subscriber, loader Loader, log *slog.Logger) *Hub {
	return &Hub{
		feed:   feed,
		loader: loader,
		log:    log,
		topics: make(map[topicKey]*topic),
	}
}

// Subscribe attaches a listener to the shared feed, opening it on first use.
// The listener is released when ctx is done; the upstream feed closes with
// its last listener.
func (h *Hub) Subscribe(ctx context.Context, table, orgID string) (<-chan Change, error) {
	key := topicKey{table: table, orgID: orgID}
	out := make(chan Change, subscriberBuffer)

	h.mu.Lock()
	t, ok := h.topics[key]
	if !ok {
		upstreamCtx, cancel := context.WithCancel(context.Background())
		events, err := h.feed.Subscribe(upstreamCtx, table, orgID)
		if err != nil {
			cancel()
			h.mu.Unlock()
			return nil, err
		}
		t = &topic{cancel: cancel, listeners: make(map[chan Change]struct{})}
		h.topics[key] = t
		go h.fanout(key, t, events)
		h.log.Debug("opened shared feed", "table", table, "org_id", orgID)
	}
	t.listeners[out] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.release(key, t, out)
	}()

	return out, nil
}

// Load reads a table once for all concurrent callers with the same key.
// The shared read outlives any single caller: a caller whose ctx ends gets
// ctx.Err() while the others still receive the rows. Callers must not mutate
// the returned rows.
func (h *Hub) Load(ctx context.Context, table, orgID string) ([]Row, error) {
	shared := context.WithoutCancel(ctx)
	ch := h.group.DoChan(table+"|"+orgID, func() (any, error) {
		return h.loader.Load(shared, table, orgID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Row), nil
	}
}

// Refs returns the number of listeners on a shared feed.
func (h *Hub) Refs(table, orgID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[topicKey{table: table, orgID: orgID}]
	if !ok {
		return 0
	}
	return len(t.listeners)
}

// Close drops every shared feed and closes all listener channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, t := range h.topics {
		t.cancel()
		for l := range t.listeners {
			delete(t.listeners, l)
			close(l)
		}
		delete(h.topics, key)
	}
}

func (h *Hub) fanout(key topicKey, t *topic, events <-chan Change) {
	for c := range events {
		h.mu.Lock()
		for l := range t.listeners {
			select {
			case l <- c:
			default:
				h.log.Warn("listener buffer full, dropping change", "table", key.table, "org_id", key.orgID)
			}
		}
		h.mu.Unlock()
	}

	// Upstream closed: listeners see their feed drop and resubscribe.
	h.mu.Lock()
	if h.topics[key] == t {
		delete(h.topics, key)
	}
	for l := range t.listeners {
		delete(t.listeners, l)
		close(l)
	}
	h.mu.Unlock()
	t.cancel()
}

func (h *Hub) release(key topicKey, t *topic, out chan Change) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := t.listeners[out]; !ok {
		return
	}
	delete(t.listeners, out)
	close(out)

	if len(t.listeners) == 0 {
		t.cancel()
		if h.topics[key] == t {
			delete(h.topics, key)
		}
		h.log.Debug("closed shared feed", "table", key.table, "org_id", key.orgID)
	}
}
