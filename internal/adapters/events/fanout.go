package events

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
)

const subscriberBuffer = 100

// fanout tracks local subscriber channels per bus channel. Delivery never
// blocks: a full subscriber misses the event.
type fanout struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan *entities.Event]struct{}
	logger      zerolog.Logger
}

func newFanout(logger zerolog.Logger) *fanout {
	return &fanout{
		subscribers: make(map[string]map[chan *entities.Event]struct{}),
		logger:      logger,
	}
}

func (f *fanout) add(channel string) (chan *entities.Event, int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subscribers[channel] == nil {
		f.subscribers[channel] = make(map[chan *entities.Event]struct{})
	}
	ch := make(chan *entities.Event, subscriberBuffer)
	f.subscribers[channel][ch] = struct{}{}
	return ch, len(f.subscribers[channel])
}

// remove closes ch and reports how many subscribers remain, or -1 if ch was
// already gone.
func (f *fanout) remove(channel string, ch chan *entities.Event) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs, ok := f.subscribers[channel]
	if !ok {
		return -1
	}
	if _, ok := subs[ch]; !ok {
		return -1
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(f.subscribers, channel)
	}
	return len(subs)
}

func (f *fanout) closeChannel(channel string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for ch := range f.subscribers[channel] {
		close(ch)
	}
	delete(f.subscribers, channel)
}

func (f *fanout) channels() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]string, 0, len(f.subscribers))
	for c := range f.subscribers {
		out = append(out, c)
	}
	return out
}

// deliver hands each subscriber its own copy of event.
func (f *fanout) deliver(channel string, event *entities.Event) int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	delivered := 0
	for ch := range f.subscribers[channel] {
		select {
		case ch <- event.Clone():
			delivered++
		default:
			f.logger.Warn().Str("channel", channel).Str("event_id", event.ID).Msg("Subscriber channel full, skipping event")
		}
	}
	return delivered
}
