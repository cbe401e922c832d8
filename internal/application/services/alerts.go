package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
	"github.com/zatekoja/kpitelemetry/pkg/config"
)

// Event alert thresholds.
const (
	SlowSearchThresholdMs     = 3000.0
	SlowGenerationThresholdMs = 10000.0
	HighCPUUsagePercent       = 85.0
	HighMemoryUsagePercent    = 90.0
)

// Alert kinds.
const (
	AlertSlowSearchResponse = "slow_search_response"
	AlertSlowGeneration     = "slow_generation"
	AlertHighCPUUsage       = "high_cpu_usage"
	AlertHighMemoryUsage    = "high_memory_usage"

	AlertHighProcessingLatency = "high_processing_latency"
	AlertHighErrorRate         = "high_error_rate"
	AlertLargeQueue            = "large_queue_size"
)

const (
	metricCPUUsage    = "cpu_usage"
	metricMemoryUsage = "memory_usage"
)

func breachesSystemThreshold(metricName string, value float64) bool {
	switch metricName {
	case metricCPUUsage:
		return value > HighCPUUsagePercent
	case metricMemoryUsage:
		return value > HighMemoryUsagePercent
	}
	return false
}

func newAlert(kind string, severity entities.AlertSeverity, msg string, value, threshold float64, at time.Time) entities.Alert {
	return entities.Alert{
		ID:          uuid.NewString(),
		Kind:        kind,
		Severity:    severity,
		Message:     msg,
		Value:       value,
		Threshold:   threshold,
		TriggeredAt: at,
	}
}

// EvaluateEventAlerts returns the alerts a single event raises.
func EvaluateEventAlerts(e *entities.Event, at time.Time) []entities.Alert {
	var alerts []entities.Alert

	switch e.Kind {
	case entities.EventKindSearch:
		if p, ok := e.Search(); ok && p.ResponseTimeMs > SlowSearchThresholdMs {
			alerts = append(alerts, newAlert(AlertSlowSearchResponse, entities.AlertSeverityWarning,
				fmt.Sprintf("search took %.0fms", p.ResponseTimeMs), p.ResponseTimeMs, SlowSearchThresholdMs, at))
		}
	case entities.EventKindGeneration:
		if p, ok := e.Generation(); ok && p.GenerationTimeMs > SlowGenerationThresholdMs {
			alerts = append(alerts, newAlert(AlertSlowGeneration, entities.AlertSeverityWarning,
				fmt.Sprintf("generation for %s took %.0fms", p.SKU, p.GenerationTimeMs), p.GenerationTimeMs, SlowGenerationThresholdMs, at))
		}
	case entities.EventKindSystemPerformance:
		p, ok := e.SystemPerformance()
		if !ok {
			break
		}
		switch {
		case p.MetricName == metricCPUUsage && p.MetricValue > HighCPUUsagePercent:
			alerts = append(alerts, newAlert(AlertHighCPUUsage, entities.AlertSeverityCritical,
				fmt.Sprintf("cpu usage at %.1f%%", p.MetricValue), p.MetricValue, HighCPUUsagePercent, at))
		case p.MetricName == metricMemoryUsage && p.MetricValue > HighMemoryUsagePercent:
			alerts = append(alerts, newAlert(AlertHighMemoryUsage, entities.AlertSeverityCritical,
				fmt.Sprintf("memory usage at %.1f%%", p.MetricValue), p.MetricValue, HighMemoryUsagePercent, at))
		}
	}

	for i := range alerts {
		alerts[i].EventID = e.ID
		alerts[i].SessionID = e.SessionID
	}
	return alerts
}

// EvaluatePipelineAlerts checks the pipeline's own health after a batch.
func EvaluatePipelineAlerts(stats entities.ProcessingStats, cfg config.PipelineConfig, at time.Time) []entities.Alert {
	var alerts []entities.Alert

	latencyThresholdMs := float64(cfg.LatencyThreshold.Milliseconds())
	if stats.AvgProcessingTimeMs > latencyThresholdMs {
		alerts = append(alerts, newAlert(AlertHighProcessingLatency, entities.AlertSeverityWarning,
			fmt.Sprintf("average processing time %.1fms", stats.AvgProcessingTimeMs), stats.AvgProcessingTimeMs, latencyThresholdMs, at))
	}

	if attempted := stats.TotalProcessed + stats.TotalFailed; attempted > 0 {
		rate := float64(stats.TotalFailed) / float64(attempted) * 100
		if rate > cfg.ErrorRateThreshold {
			alerts = append(alerts, newAlert(AlertHighErrorRate, entities.AlertSeverityWarning,
				fmt.Sprintf("error rate %.1f%%", rate), rate, cfg.ErrorRateThreshold, at))
		}
	}

	if stats.QueueSize > cfg.QueueSizeThreshold {
		alerts = append(alerts, newAlert(AlertLargeQueue, entities.AlertSeverityWarning,
			fmt.Sprintf("%d events waiting", stats.QueueSize), float64(stats.QueueSize), float64(cfg.QueueSizeThreshold), at))
	}
	return alerts
}
