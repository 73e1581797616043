package realtime_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hugh/agencydesk/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFeed struct {
	realtime.Subscriber
	calls atomic.Int32
}

func (f *countingFeed) Subscribe(ctx context.Context, table, orgID string) (<-chan realtime.Change, error) {
	f.calls.Add(1)
	return f.Subscriber.Subscribe(ctx, table, orgID)
}

func TestHub_SharesOneUpstreamFeed(t *testing.T) {
	broker := realtime.NewMemoryBroker()
	defer broker.Close()
	feed := &countingFeed{Subscriber: broker}
	hub := realtime.NewHub(feed, &staticLoader{}, discardLogger())
	defer hub.Close()

	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())

	a, err := hub.Subscribe(ctx1, "app_clients", "org-1")
	require.NoError(t, err)
	b, err := hub.Subscribe(ctx2, "app_clients", "org-1")
	require.NoError(t, err)

	assert.Equal(t, int32(1), feed.calls.Load())
	assert.Equal(t, 2, hub.Refs("app_clients", "org-1"))

	change := realtime.Change{Table: "app_clients", OrgID: "org-1", Type: realtime.EventInsert, New: realtime.Row{"id": "1"}}
	require.NoError(t, broker.Publish(context.Background(), change))
	assert.Equal(t, change, waitFor(t, a))
	assert.Equal(t, change, waitFor(t, b))

	cancel1()
	require.Eventually(t, func() bool { return hub.Refs("app_clients", "org-1") == 1 }, time.Second, 5*time.Millisecond)

	cancel2()
	require.Eventually(t, func() bool { return hub.Refs("app_clients", "org-1") == 0 }, time.Second, 5*time.Millisecond)

	// The next subscriber opens a fresh upstream feed.
	ctx3, cancel3 := context.WithCancel(context.Background())
	defer cancel3()
	_, err = hub.Subscribe(ctx3, "app_clients", "org-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), feed.calls.Load())
}

func TestHub_UpstreamDropClosesListeners(t *testing.T) {
	broker := realtime.NewMemoryBroker()
	hub := realtime.NewHub(broker, &staticLoader{}, discardLogger())

	ch, err := hub.Subscribe(context.Background(), "app_tasks", "org-1")
	require.NoError(t, err)

	require.NoError(t, broker.Close())

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("listener not closed")
	}
	assert.Equal(t, 0, hub.Refs("app_tasks", "org-1"))
}

type gatedLoader struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (l *gatedLoader) Load(context.Context, string, string) ([]realtime.Row, error) {
	if l.calls.Add(1) == 1 {
		close(l.entered)
	}
	<-l.release
	return []realtime.Row{{"id": "1", "org_id": "org-1"}}, nil
}

func TestHub_CollapsesConcurrentLoads(t *testing.T) {
	loader := &gatedLoader{entered: make(chan struct{}), release: make(chan struct{})}
	hub := realtime.NewHub(realtime.NewMemoryBroker(), loader, discardLogger())

	var wg sync.WaitGroup
	results := make([][]realtime.Row, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rows, err := hub.Load(context.Background(), "app_clients", "org-1")
			assert.NoError(t, err)
			results[i] = rows
		}(i)
		if i == 0 {
			waitFor[struct{}](t, loader.entered)
		}
	}
	time.Sleep(50 * time.Millisecond)
	close(loader.release)
	wg.Wait()

	assert.Equal(t, int32(1), loader.calls.Load())
	for _, rows := range results {
		assert.Len(t, rows, 1)
	}
}

// ctxLoader blocks until released and gives up when its ctx ends, like a
// database read would.
type ctxLoader struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (l *ctxLoader) Load(ctx context.Context, _, _ string) ([]realtime.Row, error) {
	if l.calls.Add(1) == 1 {
		close(l.entered)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.release:
		return []realtime.Row{{"id": "1", "org_id": "org-1"}}, nil
	}
}

func TestHub_LoadSurvivesFirstCallerLeaving(t *testing.T) {
	loader := &ctxLoader{entered: make(chan struct{}), release: make(chan struct{})}
	hub := realtime.NewHub(realtime.NewMemoryBroker(), loader, discardLogger())

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := hub.Load(ctxA, "app_clients", "org-1")
		errA <- err
	}()
	waitFor[struct{}](t, loader.entered)

	type result struct {
		rows []realtime.Row
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		rows, err := hub.Load(context.Background(), "app_clients", "org-1")
		resB <- result{rows, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, waitFor[error](t, errA), context.Canceled)

	close(loader.release)
	got := waitFor[result](t, resB)
	require.NoError(t, got.err)
	assert.Len(t, got.rows, 1)
	assert.Equal(t, int32(1), loader.calls.Load())
}

func TestMirrorsShareHub(t *testing.T) {
	ctx := context.Background()
	broker := realtime.NewMemoryBroker()
	defer broker.Close()
	loader := &staticLoader{rows: map[string][]realtime.Row{
		"app_clients": {{"id": "1", "org_id": "org-1"}},
	}}
	hub := realtime.NewHub(broker, loader, discardLogger())
	defer hub.Close()

	var stores []*realtime.Store
	var changes []chan realtime.Change
	for i := 0; i < 2; i++ {
		store := realtime.NewStore(nil, "")
		ch := make(chan realtime.Change, 4)
		onHydrate, hydrations := hydrated()
		m := realtime.NewMirror(store, hub, hub, discardLogger(), fastBackoff)
		sub, err := m.Subscribe(ctx, "app_clients", "org-1", onHydrate,
			realtime.WithOnChange(func(c realtime.Change) { ch <- c }))
		require.NoError(t, err)
		defer sub.Close()
		waitFor(t, hydrations)
		stores = append(stores, store)
		changes = append(changes, ch)
	}
	assert.Equal(t, 2, hub.Refs("app_clients", "org-1"))

	require.NoError(t, broker.Publish(ctx, realtime.Change{Table: "app_clients", OrgID: "org-1", Type: realtime.EventInsert,
		New: realtime.Row{"id": "2", "org_id": "org-1"}}))
	for i := range stores {
		waitFor[realtime.Change](t, changes[i])
		assert.Len(t, stores[i].Table("app_clients"), 2)
	}
}
