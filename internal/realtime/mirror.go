package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Backoff controls how a mirror resubscribes after its feed drops.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

var DefaultBackoff = Backoff{Initial: 500 * time.Millisecond, Max: 30 * time.Second}

func (b Backoff) next(d time.Duration) time.Duration {
	d *= 2
	if d > b.Max {
		return b.Max
	}
	return d
}

// Mirror keeps tables of a Store in sync: hydrate once, then apply the feed.
type Mirror struct {
	store   *Store
	loader  Loader
	feed    Subscriber
	log     *slog.Logger
	backoff Backoff
}

func NewMirror(store *Store, loader Loader, feed Subscriber, log *slog.Logger, backoff Backoff) *Mirror {
	if backoff.Initial <= 0 || backoff.Max <= 0 {
		backoff = DefaultBackoff
	}
	return &Mirror{
		store:   store,
		loader:  loader,
		feed:    feed,
		log:     log,
		backoff: backoff,
	}
}

// RowFilter decides whether a row is visible to the session.
type RowFilter func(Row) bool

type subscribeOptions struct {
	filter   RowFilter
	onChange func(Change)
}

type SubscribeOption func(*subscribeOptions)

// WithRowFilter hides rows the session may not see. A change whose row fails
// the filter removes any local copy instead of being applied.
func WithRowFilter(f RowFilter) SubscribeOption {
	return func(o *subscribeOptions) { o.filter = f }
}

// WithOnChange is called after each change has been applied to the store.
func WithOnChange(fn func(Change)) SubscribeOption {
	return func(o *subscribeOptions) { o.onChange = fn }
}

// Subscription is one mirrored (table, org) pair.
type Subscription struct {
	table     string
	orgID     string
	onHydrate func([]Row)
	opts      subscribeOptions

	cancel   context.CancelFunc
	done     chan struct{}
	alive    atomic.Bool
	hydrated atomic.Bool
}

// Close tears down the feed. Events in flight are dropped and a hydration
// that completes afterwards does not touch the store.
func (s *Subscription) Close() {
	s.alive.Store(false)
	s.cancel()
}

// Done is closed once the subscription has fully stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Subscribe opens the change feed for (table, orgID), then hydrates the table
// once and applies events until ctx is done or Close is called. The feed is
// opened before the bulk read so no change between the two is lost.
// onHydrate, if non-nil, receives the rows written by each hydration.
func (m *Mirror) Subscribe(ctx context.Context, table, orgID string, onHydrate func([]Row), opts ...SubscribeOption) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	sub := &Subscription{
		table:     table,
		orgID:     orgID,
		onHydrate: onHydrate,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(&sub.opts)
	}
	sub.alive.Store(true)

	events, err := m.feed.Subscribe(ctx, table, orgID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribing to %s: %w", table, err)
	}

	go m.run(ctx, sub, events)

	return sub, nil
}

func (m *Mirror) run(ctx context.Context, sub *Subscription, events <-chan Change) {
	defer close(sub.done)
	defer sub.alive.Store(false)

	if sub.hydrated.CompareAndSwap(false, true) {
		m.hydrate(ctx, sub)
	}

	delay := m.backoff.Initial
	for {
		started := time.Now()
		m.consume(ctx, sub, events)
		if ctx.Err() != nil {
			return
		}

		if time.Since(started) > m.backoff.Max {
			delay = m.backoff.Initial
		}
		m.log.Warn("change feed closed, resubscribing",
			"table", sub.table, "org_id", sub.orgID, "retry_in", delay)

		events = m.resubscribe(ctx, sub, &delay)
		if events == nil {
			return
		}
		// Events were missed while the feed was down.
		m.hydrate(ctx, sub)
	}
}

func (m *Mirror) resubscribe(ctx context.Context, sub *Subscription, delay *time.Duration) <-chan Change {
	timer := time.NewTimer(*delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		events, err := m.feed.Subscribe(ctx, sub.table, sub.orgID)
		*delay = m.backoff.next(*delay)
		if err == nil {
			return events
		}
		m.log.Warn("resubscribe failed",
			"table", sub.table, "org_id", sub.orgID, "error", err, "retry_in", *delay)
		timer.Reset(*delay)
	}
}

func (m *Mirror) hydrate(ctx context.Context, sub *Subscription) {
	rows, err := m.loader.Load(ctx, sub.table, sub.orgID)
	if err != nil {
		m.log.Error("hydration failed, mirroring empty table",
			"table", sub.table, "org_id", sub.orgID, "error", err)
		rows = nil
	}
	if !sub.alive.Load() {
		return
	}

	visible := make([]Row, 0, len(rows))
	for _, row := range rows {
		if !inOrg(row, sub.orgID) {
			continue
		}
		if sub.opts.filter != nil && !sub.opts.filter(row) {
			continue
		}
		visible = append(visible, row)
	}

	m.store.SetTable(sub.table, visible)
	if sub.onHydrate != nil {
		sub.onHydrate(m.store.Table(sub.table))
	}
}

func (m *Mirror) consume(ctx context.Context, sub *Subscription, events <-chan Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-events:
			if !ok {
				return
			}
			if !sub.alive.Load() {
				return
			}
			m.apply(sub, c)
		}
	}
}

func (m *Mirror) apply(sub *Subscription, c Change) {
	if c.Table != sub.table {
		return
	}
	row := c.Row()
	if row == nil {
		return
	}
	// Rows carry their own org; the envelope is a fallback for partial rows.
	org := row.OrgID()
	if org == "" {
		org = c.OrgID
	}
	if org != sub.orgID {
		m.log.Debug("discarding change for another org", "table", c.Table, "org_id", org)
		return
	}

	id := row.ID()
	switch {
	case c.Type == EventDelete:
		// Filtered sessions never hear about rows they could not see.
		if !m.store.RemoveRow(sub.table, id) && sub.opts.filter != nil {
			return
		}
	case sub.opts.filter != nil && !sub.opts.filter(row):
		if !m.store.RemoveRow(sub.table, id) {
			return
		}
		c = Change{Table: c.Table, OrgID: c.OrgID, Type: EventDelete, Old: Row{"id": id, "org_id": org}}
	default:
		m.store.UpsertRow(sub.table, row)
	}

	if sub.opts.onChange != nil {
		sub.opts.onChange(c)
	}
}

func inOrg(row Row, orgID string) bool {
	org := row.OrgID()
	return org == "" || org == orgID
}
