package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
	"github.com/zatekoja/kpitelemetry/internal/domain/providers"
)

// errSubscriptionClosed makes the supervisor resubscribe.
var errSubscriptionClosed = errors.New("event subscription closed")

// EventEnqueuer accepts events for processing.
type EventEnqueuer interface {
	Enqueue(ctx context.Context, event *entities.Event)
}

// EventForwarder feeds collected events from the bus into the pipeline.
type EventForwarder struct {
	bus     providers.EventBus
	channel string
	target  EventEnqueuer
	logger  zerolog.Logger
}

// NewEventForwarder creates a forwarder on the kpi events channel.
func NewEventForwarder(bus providers.EventBus, target EventEnqueuer, logger zerolog.Logger) *EventForwarder {
	return &EventForwarder{
		bus:     bus,
		channel: providers.EventChannelKPIEvents,
		target:  target,
		logger:  logger,
	}
}

// Serve forwards until ctx ends. A subscription that closes underneath it
// is reported as an error so the supervisor restarts the forwarder.
func (f *EventForwarder) Serve(ctx context.Context) error {
	events, err := f.bus.Subscribe(ctx, f.channel)
	if err != nil {
		return err
	}
	f.logger.Info().Str("channel", f.channel).Msg("Forwarding events to pipeline")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errSubscriptionClosed
			}
			f.target.Enqueue(ctx, e)
		}
	}
}

// String names the service in supervisor logs.
func (f *EventForwarder) String() string { return "event-forwarder" }
