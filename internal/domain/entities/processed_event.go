package entities

import "time"

// ProcessingStatus is the outcome of one pipeline pass over an event
type ProcessingStatus string

const (
	ProcessingStatusProcessed ProcessingStatus = "processed"
	ProcessingStatusFailed    ProcessingStatus = "failed"
	ProcessingStatusSkipped   ProcessingStatus = "skipped"
)

// ProcessedEvent records what the pipeline derived from one event.
type ProcessedEvent struct {
	ID                  string           `json:"id"`
	Event               *Event           `json:"original_event"`
	ProcessedAt         time.Time        `json:"processed_at"`
	ProcessingTime      time.Duration    `json:"processing_time"`
	Enrichments         map[string]any   `json:"enrichments"`
	AggregationsUpdated []string         `json:"aggregations_updated"`
	AlertsTriggered     []string         `json:"alerts_triggered"`
	Status              ProcessingStatus `json:"status"`
	Error               string           `json:"error_message,omitempty"`
}

// AlertSeverity grades an alert
type AlertSeverity string

const (
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

// Alert is raised by an event or by the pipeline's own health checks.
type Alert struct {
	ID          string        `json:"id"`
	Kind        string        `json:"kind"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	Value       float64       `json:"value"`
	Threshold   float64       `json:"threshold"`
	EventID     string        `json:"event_id,omitempty"`
	SessionID   string        `json:"session_id,omitempty"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// ProcessingStats summarizes pipeline throughput since start.
type ProcessingStats struct {
	TotalProcessed      int64         `json:"total_processed"`
	TotalFailed         int64         `json:"total_failed"`
	TotalSkipped        int64         `json:"total_skipped"`
	AvgProcessingTimeMs float64       `json:"avg_processing_time_ms"`
	ThroughputPerSecond float64       `json:"throughput_per_second"`
	QueueSize           int           `json:"queue_size"`
	LastProcessedAt     time.Time     `json:"last_processed_at"`
	Uptime              time.Duration `json:"uptime"`
	Running             bool          `json:"running"`
}

// BatchResult is returned by one processing pass.
type BatchResult struct {
	Events    []*ProcessedEvent `json:"events"`
	Processed int               `json:"processed"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped"`
	Duration  time.Duration     `json:"duration"`
	Alerts    []Alert           `json:"alerts"`
}
