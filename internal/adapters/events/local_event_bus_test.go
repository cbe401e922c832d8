package events

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
	"github.com/zatekoja/kpitelemetry/internal/domain/providers"
)

func testEvent(id string) *entities.Event {
	return &entities.Event{
		ID:        id,
		Kind:      entities.EventKindSearch,
		Timestamp: time.Now(),
		SessionID: "s1",
		Source:    entities.EventSourceAPI,
		Payload:   &entities.SearchPayload{Query: "widgets", ResultsCount: 3},
	}
}

func TestLocalEventBus_DeliversToAllSubscribers(t *testing.T) {
	bus := NewLocalEventBus(zerolog.Nop())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := bus.Subscribe(ctx, providers.EventChannelKPIEvents)
	require.NoError(t, err)
	b, err := bus.Subscribe(ctx, providers.EventChannelKPIEvents)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, providers.EventChannelKPIEvents, testEvent("e1")))

	for _, ch := range []<-chan *entities.Event{a, b} {
		select {
		case ev := <-ch:
			assert.Equal(t, "e1", ev.ID)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestLocalEventBus_SubscriberGetsCopy(t *testing.T) {
	bus := NewLocalEventBus(zerolog.Nop())
	defer bus.Close()

	ch, err := bus.Subscribe(context.Background(), "c")
	require.NoError(t, err)

	ev := testEvent("e1")
	require.NoError(t, bus.Publish(context.Background(), "c", ev))
	got := <-ch
	got.SessionID = "changed"
	assert.Equal(t, "s1", ev.SessionID)
}

func TestLocalEventBus_ContextCancelClosesChannel(t *testing.T) {
	bus := NewLocalEventBus(zerolog.Nop())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx, "c")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestLocalEventBus_FullSubscriberDropsEvents(t *testing.T) {
	bus := NewLocalEventBus(zerolog.Nop())
	defer bus.Close()

	ch, err := bus.Subscribe(context.Background(), "c")
	require.NoError(t, err)

	for i := 0; i < subscriberBuffer+10; i++ {
		require.NoError(t, bus.Publish(context.Background(), "c", testEvent("e")))
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestLocalEventBus_Close(t *testing.T) {
	bus := NewLocalEventBus(zerolog.Nop())
	ch, err := bus.Subscribe(context.Background(), "c")
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	_, ok := <-ch
	assert.False(t, ok)

	assert.ErrorIs(t, bus.Publish(context.Background(), "c", testEvent("e")), ErrBusClosed)
	_, err = bus.Subscribe(context.Background(), "c")
	assert.ErrorIs(t, err, ErrBusClosed)
}
