package entities

import (
	"math"
	"time"
)

// Trend is the direction of a streaming metric
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// trendThresholdPct is the change needed before a trend is reported.
const trendThresholdPct = 5.0

// StreamingMetricWindowMinutes is informational; smoothing does not use it.
const StreamingMetricWindowMinutes = 5

// StreamingMetric is a rolling real-time signal.
type StreamingMetric struct {
	Name              string    `json:"metric_name"`
	CurrentValue      float64   `json:"current_value"`
	PreviousValue     float64   `json:"previous_value"`
	ChangePercent     float64   `json:"change_percent"`
	Trend             Trend     `json:"trend"`
	LastUpdated       time.Time `json:"last_updated"`
	TimeWindowMinutes int       `json:"time_window_minutes"`
}

// NewStreamingMetric seeds a metric with its first observation.
func NewStreamingMetric(name string, v float64, at time.Time) *StreamingMetric {
	return &StreamingMetric{
		Name:              name,
		CurrentValue:      v,
		Trend:             TrendStable,
		LastUpdated:       at,
		TimeWindowMinutes: StreamingMetricWindowMinutes,
	}
}

// Update applies new = (old + v) / 2.
func (m *StreamingMetric) Update(v float64, at time.Time) {
	old := m.CurrentValue
	next := (old + v) / 2

	change := 0.0
	if old > 0 {
		change = (next - old) / old * 100
	}

	trend := TrendStable
	if math.Abs(change) > trendThresholdPct {
		if change > 0 {
			trend = TrendUp
		} else {
			trend = TrendDown
		}
	}

	m.PreviousValue = old
	m.CurrentValue = next
	m.ChangePercent = change
	m.Trend = trend
	m.LastUpdated = at
}
