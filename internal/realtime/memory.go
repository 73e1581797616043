package realtime

import (
	"context"
	"sync"
	"sync/atomic"
)

// subscriberBuffer bounds each feed; events beyond it are dropped.
const subscriberBuffer = 256

type memorySubscriber struct {
	ctx    context.Context
	table  string
	orgID  string
	ch     chan Change
	closed atomic.Bool
}

// MemoryBroker is an in-process change feed for single-instance deployments
// and tests. It also fans out notifications received by the Postgres broker.
type MemoryBroker struct {
	mu          sync.RWMutex
	subscribers map[*memorySubscriber]struct{}
	closed      atomic.Bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subscribers: make(map[*memorySubscriber]struct{}),
	}
}

// Publish delivers c to every matching subscriber without blocking.
func (b *MemoryBroker) Publish(_ context.Context, c Change) error {
	if b.closed.Load() {
		return ErrBrokerClosed
	}

	b.mu.RLock()
	subs := make([]*memorySubscriber, 0, len(b.subscribers))
	for sub := range b.subscribers {
		if sub.table == c.Table && sub.orgID == c.OrgID {
			subs = append(subs, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.closed.Load() {
			continue
		}
		trySend(sub, c)
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, table, orgID string) (<-chan Change, error) {
	if b.closed.Load() {
		return nil, ErrBrokerClosed
	}

	sub := &memorySubscriber{
		ctx:   ctx,
		table: table,
		orgID: orgID,
		ch:    make(chan Change, subscriberBuffer),
	}

	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		return nil, ErrBrokerClosed
	}
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	go b.monitorContext(sub)

	return sub.ch, nil
}

// Close shuts the broker down and closes every subscriber channel.
func (b *MemoryBroker) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		if sub.closed.CompareAndSwap(false, true) {
			close(sub.ch)
		}
	}
	b.subscribers = nil
	return nil
}

func (b *MemoryBroker) monitorContext(sub *memorySubscriber) {
	<-sub.ctx.Done()
	b.removeSubscriber(sub)
}

func (b *MemoryBroker) removeSubscriber(sub *memorySubscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers == nil {
		return
	}
	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	if sub.closed.CompareAndSwap(false, true) {
		close(sub.ch)
	}
}

func trySend(sub *memorySubscriber, c Change) {
	// A concurrent close can race with the send.
	defer func() {
		if r := recover(); r != nil {
			sub.closed.Store(true)
		}
	}()

	select {
	case sub.ch <- c:
	default:
	}
}
