package events

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
	"github.com/zatekoja/kpitelemetry/internal/domain/providers"
)

// ErrBusClosed is returned by operations on a closed bus.
var ErrBusClosed = errors.New("event bus closed")

// LocalEventBus delivers events between components of one process. It backs
// the collector-to-pipeline hand-off when Redis is disabled.
type LocalEventBus struct {
	fanout *fanout
	closed atomic.Bool
	logger zerolog.Logger
}

// NewLocalEventBus creates a new in-process event bus
func NewLocalEventBus(logger zerolog.Logger) *LocalEventBus {
	return &LocalEventBus{
		fanout: newFanout(logger),
		logger: logger,
	}
}

var _ providers.EventBus = (*LocalEventBus)(nil)

// Publish delivers event to current subscribers of channel.
func (b *LocalEventBus) Publish(_ context.Context, channel string, event *entities.Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	n := b.fanout.deliver(channel, event)
	b.logger.Debug().Str("channel", channel).Str("event_id", event.ID).Int("subscribers", n).Msg("Published event")
	return nil
}

// Subscribe returns a channel of events; it closes when ctx ends.
func (b *LocalEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.Event, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	ch, count := b.fanout.add(channel)
	b.logger.Debug().Str("channel", channel).Int("subscribers", count).Msg("Subscribed to channel")

	go func() {
		<-ctx.Done()
		b.fanout.remove(channel, ch)
	}()
	return ch, nil
}

// Unsubscribe closes every subscriber of channel.
func (b *LocalEventBus) Unsubscribe(_ context.Context, channel string) error {
	b.fanout.closeChannel(channel)
	return nil
}

// Close closes all subscriptions. Later publishes fail.
func (b *LocalEventBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, c := range b.fanout.channels() {
		b.fanout.closeChannel(c)
	}
	return nil
}
