package services

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
)

type signal struct {
	name  string
	value float64
}

// StreamingMetrics holds one smoothed StreamingMetric per signal name.
type StreamingMetrics struct {
	mu      sync.RWMutex
	metrics map[string]*entities.StreamingMetric
}

// NewStreamingMetrics creates an empty metric table.
func NewStreamingMetrics() *StreamingMetrics {
	return &StreamingMetrics{metrics: make(map[string]*entities.StreamingMetric)}
}

func signalsFor(e *entities.Event) []signal {
	switch e.Kind {
	case entities.EventKindSearch:
		if p, ok := e.Search(); ok {
			return []signal{
				{"search_count", 1},
				{"search_response_time", p.ResponseTimeMs},
				{"search_results_count", float64(p.ResultsCount)},
			}
		}
	case entities.EventKindGeneration:
		if p, ok := e.Generation(); ok {
			return []signal{
				{"generation_count", 1},
				{"generation_time", p.GenerationTimeMs},
				{"generation_quality", p.QualityScore},
			}
		}
	case entities.EventKindUserInteraction:
		out := []signal{{"user_interaction_count", 1}}
		if p, ok := e.UserInteraction(); ok && p.TimeOnPageMs > 0 {
			out = append(out, signal{"time_on_page", p.TimeOnPageMs})
		}
		return out
	case entities.EventKindSystemPerformance:
		if p, ok := e.SystemPerformance(); ok {
			return []signal{{"system_" + p.MetricName, p.MetricValue}}
		}
	}
	return nil
}

// Update pushes the event's signals through the smoothing rule and returns
// the names it touched. A non-finite signal fails the whole update.
func (s *StreamingMetrics) Update(e *entities.Event, at time.Time) ([]string, error) {
	signals := signalsFor(e)
	for _, sig := range signals {
		if math.IsNaN(sig.value) || math.IsInf(sig.value, 0) {
			return nil, fmt.Errorf("signal %s is not finite", sig.name)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(signals))
	for _, sig := range signals {
		if m, ok := s.metrics[sig.name]; ok {
			m.Update(sig.value, at)
		} else {
			s.metrics[sig.name] = entities.NewStreamingMetric(sig.name, sig.value, at)
		}
		names = append(names, sig.name)
	}
	return names, nil
}

// Snapshot copies the current table.
func (s *StreamingMetrics) Snapshot() map[string]entities.StreamingMetric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]entities.StreamingMetric, len(s.metrics))
	for k, m := range s.metrics {
		out[k] = *m
	}
	return out
}
