package services

import (
	"context"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

// SystemPerformanceRecorder is the part of the Collector the monitor uses.
type SystemPerformanceRecorder interface {
	CollectSystemPerformance(ctx context.Context, metricName string, value float64, unit, sessionID, component string)
}

const monitorComponent = "runtime"

// SystemMonitor samples Go runtime health and records it as
// system_performance events.
type SystemMonitor struct {
	recorder SystemPerformanceRecorder
	interval time.Duration
	logger   zerolog.Logger
	readMem  func(*runtime.MemStats)
}

// NewSystemMonitor creates a monitor that samples every interval.
func NewSystemMonitor(recorder SystemPerformanceRecorder, interval time.Duration, logger zerolog.Logger) *SystemMonitor {
	return &SystemMonitor{
		recorder: recorder,
		interval: interval,
		logger:   logger,
		readMem:  runtime.ReadMemStats,
	}
}

// Sample records one set of runtime metrics.
func (m *SystemMonitor) Sample(ctx context.Context) {
	var ms runtime.MemStats
	m.readMem(&ms)

	usage := 0.0
	if ms.Sys > 0 {
		usage = float64(ms.Alloc) / float64(ms.Sys) * 100
	}
	m.recorder.CollectSystemPerformance(ctx, metricMemoryUsage, usage, "percent", "", monitorComponent)
	m.recorder.CollectSystemPerformance(ctx, "goroutines", float64(runtime.NumGoroutine()), "count", "", monitorComponent)
	m.recorder.CollectSystemPerformance(ctx, "heap_alloc_mb", float64(ms.HeapAlloc)/(1<<20), "MB", "", monitorComponent)
}

// Serve samples until ctx is cancelled.
func (m *SystemMonitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Debug().Dur("interval", m.interval).Msg("System monitor started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Sample(ctx)
		}
	}
}

// String names the service in supervisor logs.
func (m *SystemMonitor) String() string { return "system-monitor" }
