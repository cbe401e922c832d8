package repositories

import (
	"context"
	"time"

	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
)

// Record is one row handed to the persistence sink.
type Record map[string]any

// Sink table names.
const (
	TableKPIEvents         = "kpi_events"
	TableProcessedEvents   = "processed_events"
	TableEventAggregations = "event_aggregations"
	TableKPIAlerts         = "kpi_alerts"
)

// EventSink persists batches of records. A batch is written atomically or not at all.
type EventSink interface {
	Insert(ctx context.Context, table string, records []Record) error
}

// SessionEventReader returns previously persisted events of one session,
// oldest first.
type SessionEventReader interface {
	EventsBySession(ctx context.Context, sessionID string) ([]SessionEvent, error)
}

// SessionEvent is the slice of a stored event the enrichment stage needs.
type SessionEvent struct {
	Kind      entities.EventKind
	Timestamp time.Time
}
