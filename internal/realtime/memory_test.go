package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBroker_RoutesByTableAndOrg(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clients, err := b.Subscribe(ctx, "app_clients", "org-1")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, Change{Table: "app_tasks", OrgID: "org-1", Type: EventInsert}))
	require.NoError(t, b.Publish(ctx, Change{Table: "app_clients", OrgID: "org-2", Type: EventInsert}))
	require.NoError(t, b.Publish(ctx, Change{Table: "app_clients", OrgID: "org-1", Type: EventUpdate}))

	select {
	case c := <-clients:
		assert.Equal(t, EventUpdate, c.Type)
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}
	assert.Empty(t, clients)
}

func TestMemoryBroker_ContextCancelClosesFeed(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := b.Subscribe(ctx, "app_clients", "org-1")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("feed not closed")
	}
}

func TestMemoryBroker_DropsWhenBufferFull(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ch, err := b.Subscribe(context.Background(), "app_clients", "org-1")
	require.NoError(t, err)

	for i := 0; i < subscriberBuffer+10; i++ {
		require.NoError(t, b.Publish(context.Background(), Change{Table: "app_clients", OrgID: "org-1"}))
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestMemoryBroker_Closed(t *testing.T) {
	b := NewMemoryBroker()
	require.NoError(t, b.Close())

	_, err := b.Subscribe(context.Background(), "app_clients", "org-1")
	assert.ErrorIs(t, err, ErrBrokerClosed)
	assert.ErrorIs(t, b.Publish(context.Background(), Change{}), ErrBrokerClosed)
}

func TestPostgresBroker_RejectsOversizedPayload(t *testing.T) {
	b := &PostgresBroker{}
	big := make([]byte, maxNotifyPayload)
	for i := range big {
		big[i] = 'x'
	}
	err := b.Publish(context.Background(), Change{Table: "app_clients", New: Row{"notes": string(big)}})
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestBackoff_Next(t *testing.T) {
	b := DefaultBackoff
	d := b.Initial
	var got []time.Duration
	for i := 0; i < 8; i++ {
		d = b.next(d)
		got = append(got, d)
	}
	assert.Equal(t, time.Second, got[0])
	assert.Equal(t, 30*time.Second, got[len(got)-1])
}
