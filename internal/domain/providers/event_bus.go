package providers

import (
	"context"

	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.Event) error

	// Subscribe returns a channel that is closed when ctx is done or the bus closes
	Subscribe(ctx context.Context, channel string) (<-chan *entities.Event, error)

	// Unsubscribe drops every subscriber of a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

// EventChannelKPIEvents carries every accepted, anonymized event
const EventChannelKPIEvents = "kpi:events"
