package entities

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// EventKind identifies which payload variant an Event carries
type EventKind string

const (
	EventKindSearch            EventKind = "search"
	EventKindGeneration        EventKind = "generation"
	EventKindReview            EventKind = "review"
	EventKindDataQuality       EventKind = "data_quality"
	EventKindSystemPerformance EventKind = "system_performance"
	EventKindUserInteraction   EventKind = "user_interaction"
)

// EventKinds returns every recognized kind.
func EventKinds() []EventKind {
	return []EventKind{
		EventKindSearch, EventKindGeneration, EventKindReview,
		EventKindDataQuality, EventKindSystemPerformance, EventKindUserInteraction,
	}
}

// EventSource identifies the producer side of an event
type EventSource string

const (
	EventSourceAPI       EventSource = "api"
	EventSourceDashboard EventSource = "dashboard"
	EventSourceSystem    EventSource = "system"
	EventSourceExternal  EventSource = "external"
)

// SystemSessionID is used for events that no user journey owns.
const SystemSessionID = "system"

// Event is a single behavioral or operational observation.
//
// Payload holds the kind-specific fields; Extra holds any additional open
// attributes a producer attaches. Only Extra is subject to the PII deny-list.
type Event struct {
	ID        string         `json:"id,omitempty"`
	Kind      EventKind      `json:"type" validate:"required,oneof=search generation review data_quality system_performance user_interaction"`
	Timestamp time.Time      `json:"timestamp" validate:"required"`
	SessionID string         `json:"session_id" validate:"required"`
	UserID    string         `json:"user_id,omitempty"`
	Source    EventSource    `json:"source" validate:"required,oneof=api dashboard system external"`
	Payload   Payload        `json:"-" validate:"-"`
	Extra     map[string]any `json:"extra,omitempty"`

	// Anonymized is set once user id hashing and query masking have run.
	Anonymized bool `json:"anonymized,omitempty"`
}

// Payload is implemented by one struct per event kind.
type Payload interface {
	Kind() EventKind
	// Attributes returns the payload as a flat record, omitting unset optionals.
	Attributes() map[string]any
}

// Clone returns a copy whose Extra map can be modified independently.
// Payload values are immutable structs and are shared.
func (e *Event) Clone() *Event {
	out := *e
	if e.Extra != nil {
		out.Extra = make(map[string]any, len(e.Extra))
		for k, v := range e.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

// Attributes flattens the payload and extra attributes into one record.
// Payload fields win over extra keys with the same name.
func (e *Event) Attributes() map[string]any {
	attrs := make(map[string]any, len(e.Extra)+8)
	for k, v := range e.Extra {
		attrs[k] = v
	}
	if e.Payload != nil {
		for k, v := range e.Payload.Attributes() {
			attrs[k] = v
		}
	}
	return attrs
}

// Search returns the search payload, if the event carries one.
func (e *Event) Search() (*SearchPayload, bool) {
	p, ok := e.Payload.(*SearchPayload)
	return p, ok && p != nil
}

// Generation returns the generation payload, if the event carries one.
func (e *Event) Generation() (*GenerationPayload, bool) {
	p, ok := e.Payload.(*GenerationPayload)
	return p, ok && p != nil
}

// Review returns the review payload, if the event carries one.
func (e *Event) Review() (*ReviewPayload, bool) {
	p, ok := e.Payload.(*ReviewPayload)
	return p, ok && p != nil
}

// DataQuality returns the data quality payload, if the event carries one.
func (e *Event) DataQuality() (*DataQualityPayload, bool) {
	p, ok := e.Payload.(*DataQualityPayload)
	return p, ok && p != nil
}

// SystemPerformance returns the system performance payload, if the event carries one.
func (e *Event) SystemPerformance() (*SystemPerformancePayload, bool) {
	p, ok := e.Payload.(*SystemPerformancePayload)
	return p, ok && p != nil
}

// UserInteraction returns the user interaction payload, if the event carries one.
func (e *Event) UserInteraction() (*UserInteractionPayload, bool) {
	p, ok := e.Payload.(*UserInteractionPayload)
	return p, ok && p != nil
}

type eventWire struct {
	ID        string          `json:"id,omitempty"`
	Kind      EventKind       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id,omitempty"`
	Source    EventSource     `json:"source"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Extra     map[string]any  `json:"extra,omitempty"`

	Anonymized bool `json:"anonymized,omitempty"`
}

// MarshalJSON encodes the payload under "metadata" next to the envelope.
func (e Event) MarshalJSON() ([]byte, error) {
	w := eventWire{
		ID:        e.ID,
		Kind:      e.Kind,
		Timestamp: e.Timestamp,
		SessionID: e.SessionID,
		UserID:    e.UserID,
		Source:    e.Source,
		Extra:     e.Extra,

		Anonymized: e.Anonymized,
	}
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", e.Kind, err)
		}
		w.Metadata = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes "metadata" into the payload type selected by "type".
func (e *Event) UnmarshalJSON(data []byte) error {
	var w eventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = Event{
		ID:        w.ID,
		Kind:      w.Kind,
		Timestamp: w.Timestamp,
		SessionID: w.SessionID,
		UserID:    w.UserID,
		Source:    w.Source,
		Extra:     w.Extra,

		Anonymized: w.Anonymized,
	}
	if len(w.Metadata) == 0 || string(w.Metadata) == "null" {
		return nil
	}

	payload, err := newPayload(w.Kind)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(w.Metadata, payload); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", w.Kind, err)
	}
	e.Payload = payload
	return nil
}

func newPayload(kind EventKind) (Payload, error) {
	switch kind {
	case EventKindSearch:
		return &SearchPayload{}, nil
	case EventKindGeneration:
		return &GenerationPayload{}, nil
	case EventKindReview:
		return &ReviewPayload{}, nil
	case EventKindDataQuality:
		return &DataQualityPayload{}, nil
	case EventKindSystemPerformance:
		return &SystemPerformancePayload{}, nil
	case EventKindUserInteraction:
		return &UserInteractionPayload{}, nil
	}
	return nil, fmt.Errorf("unknown event type %q", kind)
}
