package services

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemMonitor_Sample(t *testing.T) {
	rec := &capturingRecorder{}
	m := NewSystemMonitor(rec, time.Minute, zerolog.Nop())
	m.readMem = func(ms *runtime.MemStats) {
		ms.Alloc = 25 << 20
		ms.Sys = 100 << 20
		ms.HeapAlloc = 24 << 20
	}

	m.Sample(context.Background())

	require.Len(t, rec.samples, 3)
	assert.Equal(t, systemSample{"memory_usage", 25, "percent"}, rec.samples[0])
	assert.Equal(t, "goroutines", rec.samples[1].name)
	assert.Positive(t, rec.samples[1].value)
	assert.Equal(t, systemSample{"heap_alloc_mb", 24, "MB"}, rec.samples[2])
}

func TestSystemMonitor_ZeroSysReportsZeroUsage(t *testing.T) {
	rec := &capturingRecorder{}
	m := NewSystemMonitor(rec, time.Minute, zerolog.Nop())
	m.readMem = func(*runtime.MemStats) {}

	m.Sample(context.Background())
	assert.Equal(t, 0.0, rec.samples[0].value)
}

func TestSystemMonitor_FeedsCollector(t *testing.T) {
	sink := newRecordingSink()
	c := newTestCollector(sink, 1000)
	m := NewSystemMonitor(c, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx) }()

	require.Eventually(t, func() bool {
		return c.QueueStatus().QueueLength >= 3
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	require.NoError(t, c.ForceFlush(context.Background()))
	for _, r := range sink.rows("kpi_events") {
		assert.Equal(t, "system_performance", r["type"])
		assert.Equal(t, "system", r["session_id"])
	}
}
