package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
	"github.com/zatekoja/kpitelemetry/internal/domain/providers"
	"github.com/zatekoja/kpitelemetry/internal/domain/repositories"
	"github.com/zatekoja/kpitelemetry/internal/infrastructure/observability"
	"github.com/zatekoja/kpitelemetry/pkg/config"
	apperrors "github.com/zatekoja/kpitelemetry/pkg/errors"
)

// RealTimeMetricsCacheKey holds the latest streaming metric snapshot.
const RealTimeMetricsCacheKey = "kpi:realtime:metrics"

const realTimeMetricsTTL = entities.StreamingMetricWindowMinutes * time.Minute

// PipelineDeps are the pipeline's collaborators. Only Sink is required.
type PipelineDeps struct {
	Sink     repositories.EventSink
	Sessions repositories.SessionEventReader
	Analyzer providers.DataQualityAnalyzer
	Cache    providers.CacheProvider
	Metrics  *observability.Metrics
}

// Pipeline turns queued events into enrichments, aggregates, streaming
// metrics and alerts.
type Pipeline struct {
	cfg     config.PipelineConfig
	deps    PipelineDeps
	logger  zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time

	enricher   *Enricher
	streaming  *StreamingMetrics
	aggregator *Aggregator

	mu    sync.Mutex
	queue []*entities.Event

	// batchMu serializes processing passes.
	batchMu sync.Mutex

	runMu   sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	trigger chan struct{}

	statsMu   sync.Mutex
	stats     entities.ProcessingStats
	startedAt time.Time
}

// NewPipeline validates the window and timezone configuration and builds a
// stopped pipeline.
func NewPipeline(cfg config.PipelineConfig, deps PipelineDeps, logger zerolog.Logger) (*Pipeline, error) {
	if deps.Sink == nil {
		return nil, apperrors.NewConfigurationError("pipeline requires an event sink", nil)
	}
	windows := make([]entities.TimeWindow, 0, len(cfg.Windows))
	for _, name := range cfg.Windows {
		w, err := entities.ParseTimeWindow(name)
		if err != nil {
			return nil, apperrors.NewConfigurationError("invalid pipeline window", err)
		}
		windows = append(windows, w)
	}
	if len(windows) == 0 {
		windows = entities.TimeWindows()
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, apperrors.NewConfigurationError("invalid pipeline timezone", err)
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.MustInitMetrics()
	}

	return &Pipeline{
		cfg:        cfg,
		deps:       deps,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
		enricher:   NewEnricher(deps.Sessions, loc, logger),
		streaming:  NewStreamingMetrics(),
		aggregator: NewAggregator(windows, loc, cfg.AggregationGrace),
		trigger:    make(chan struct{}, 1),
		startedAt:  time.Now(),
	}, nil
}

// Enqueue appends event. A full batch wakes the worker, or is processed
// inline when the pipeline is stopped.
func (p *Pipeline) Enqueue(ctx context.Context, event *entities.Event) {
	if event == nil {
		return
	}
	p.mu.Lock()
	p.queue = append(p.queue, event)
	size := len(p.queue)
	p.mu.Unlock()

	if size < p.cfg.BatchSize {
		return
	}
	if p.IsRunning() {
		select {
		case p.trigger <- struct{}{}:
		default:
		}
		return
	}
	p.ProcessBatch(ctx)
}

// StartProcessing launches the processing loop. An initial pass runs
// immediately. Calling it while running only logs a warning.
func (p *Pipeline) StartProcessing(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.cancel != nil {
		p.logger.Warn().Msg("Pipeline already running")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	p.statsMu.Lock()
	p.stats.Running = true
	p.statsMu.Unlock()

	go p.loop(runCtx, p.done)
	p.logger.Info().Dur("interval", p.cfg.ProcessingInterval).Int("batch_size", p.cfg.BatchSize).Msg("Pipeline started")
}

// StopProcessing stops the loop and waits for the current pass to finish.
func (p *Pipeline) StopProcessing() {
	p.runMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	p.statsMu.Lock()
	p.stats.Running = false
	p.statsMu.Unlock()
	p.logger.Info().Int("queued", p.queueLen()).Msg("Pipeline stopped")
}

// IsRunning reports whether the processing loop is active.
func (p *Pipeline) IsRunning() bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.cancel != nil
}

// Serve runs the pipeline until ctx is cancelled.
func (p *Pipeline) Serve(ctx context.Context) error {
	p.StartProcessing(ctx)
	<-ctx.Done()
	p.StopProcessing()
	return ctx.Err()
}

// String names the service in supervisor logs.
func (p *Pipeline) String() string { return "event-pipeline" }

func (p *Pipeline) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer p.exited(done)

	ticker := time.NewTicker(p.cfg.ProcessingInterval)
	defer ticker.Stop()

	p.ProcessBatch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		case <-p.trigger:
			p.ProcessBatch(ctx)
		}
	}
}

// exited returns the pipeline to stopped when the loop ends because its
// parent context was cancelled rather than through StopProcessing.
func (p *Pipeline) exited(done chan struct{}) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.done != done {
		return
	}
	p.cancel()
	p.cancel, p.done = nil, nil

	p.statsMu.Lock()
	p.stats.Running = false
	p.statsMu.Unlock()
	p.logger.Info().Int("queued", p.queueLen()).Msg("Pipeline stopped by context")
}

func (p *Pipeline) queueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *Pipeline) drain() []*entities.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := min(p.cfg.BatchSize, len(p.queue))
	if n == 0 {
		return nil
	}
	batch := make([]*entities.Event, n)
	copy(batch, p.queue[:n])
	p.queue = p.queue[n:]
	if len(p.queue) == 0 {
		p.queue = nil
	}
	return batch
}

// ProcessBatch drains up to BatchSize events and runs every stage over each.
func (p *Pipeline) ProcessBatch(ctx context.Context) entities.BatchResult {
	p.batchMu.Lock()
	defer p.batchMu.Unlock()

	now := p.now()
	p.aggregator.Seal(now)

	batch := p.drain()
	if len(batch) == 0 {
		return entities.BatchResult{}
	}

	ctx, span := observability.StartSpan(ctx, "pipeline.process_batch", attribute.Int("batch_size", len(batch)))
	defer span.End()

	start := time.Now()
	result := entities.BatchResult{Events: make([]*entities.ProcessedEvent, 0, len(batch))}
	var totalEventTime time.Duration

	for _, e := range batch {
		pe, alerts := p.processEvent(ctx, e)
		result.Events = append(result.Events, pe)
		result.Alerts = append(result.Alerts, alerts...)
		totalEventTime += pe.ProcessingTime

		switch pe.Status {
		case entities.ProcessingStatusProcessed:
			result.Processed++
		case entities.ProcessingStatusFailed:
			result.Failed++
		case entities.ProcessingStatusSkipped:
			result.Skipped++
		}
		observability.Add(ctx, p.metrics.EventsProcessed, 1, attribute.String("status", string(pe.Status)))
	}
	result.Duration = time.Since(start)
	observability.RecordDuration(ctx, p.metrics.BatchDuration, result.Duration)

	p.persist(ctx, result)

	avgMs := float64(totalEventTime.Microseconds()) / 1000 / float64(len(batch))
	stats := p.recordStats(result, avgMs)
	for _, a := range EvaluatePipelineAlerts(stats, p.cfg, p.now()) {
		observability.Add(ctx, p.metrics.AlertsTriggered, 1, attribute.String("kind", a.Kind))
		p.logger.Warn().Str("alert", a.Kind).Float64("value", a.Value).Float64("threshold", a.Threshold).Msg(a.Message)
	}

	p.cacheRealTimeMetrics(ctx)

	observability.LoggerFromContext(ctx, p.logger).Debug().
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Dur("took", result.Duration).
		Msg("Processed batch")
	return result
}

// processEvent runs all stages. Every stage runs even after an earlier one
// fails; the first error decides the failure message.
func (p *Pipeline) processEvent(ctx context.Context, e *entities.Event) (pe *entities.ProcessedEvent, alerts []entities.Alert) {
	start := time.Now()
	pe = &entities.ProcessedEvent{
		ID:          uuid.NewString(),
		Event:       e,
		Enrichments: map[string]any{},
		Status:      entities.ProcessingStatusProcessed,
	}
	defer func() {
		if r := recover(); r != nil {
			pe.Status = entities.ProcessingStatusFailed
			pe.Error = fmt.Sprintf("panic: %v", r)
			p.logger.Error().Str("event_id", e.ID).Interface("panic", r).Msg("Recovered panic while processing event")
		}
		pe.ProcessedAt = p.now()
		pe.ProcessingTime = time.Since(start)
	}()

	if err := ValidateEvent(e); err != nil {
		pe.Status = entities.ProcessingStatusSkipped
		pe.Error = err.Error()
		return pe, nil
	}

	var errs []error
	fail := func(stage string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", stage, err))
		}
	}

	enrichments, err := p.enricher.Enrich(ctx, e)
	if enrichments != nil {
		pe.Enrichments = enrichments
	}
	fail("enrichment", err)

	_, err = p.streaming.Update(e, p.now())
	fail("streaming metrics", err)

	pe.AggregationsUpdated, err = p.aggregator.Update(e, p.now())
	fail("aggregation", err)

	p.triggerDownstream(ctx, e)

	alerts = EvaluateEventAlerts(e, p.now())
	for _, a := range alerts {
		pe.AlertsTriggered = append(pe.AlertsTriggered, a.Kind)
		observability.Add(ctx, p.metrics.AlertsTriggered, 1, attribute.String("kind", a.Kind))
		p.logger.Warn().Str("alert", a.Kind).Str("event_id", e.ID).Msg(a.Message)
	}

	if len(errs) > 0 {
		pe.Status = entities.ProcessingStatusFailed
		pe.Error = errs[0].Error()
		p.logger.Warn().Err(errors.Join(errs...)).Str("event_id", e.ID).Msg("Event processing failed")
	}
	return pe, alerts
}

func (p *Pipeline) triggerDownstream(ctx context.Context, e *entities.Event) {
	if e.Kind != entities.EventKindDataQuality {
		p.logger.Debug().Str("type", string(e.Kind)).Str("event_id", e.ID).Msg("No downstream analysis for event")
		return
	}
	if p.deps.Analyzer == nil {
		return
	}
	if err := p.deps.Analyzer.AnalyzeCompleteness(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("Data quality re-analysis failed")
	}
}

func (p *Pipeline) persist(ctx context.Context, result entities.BatchResult) {
	processed := make([]repositories.Record, 0, len(result.Events))
	for _, pe := range result.Events {
		processed = append(processed, processedEventRecord(pe))
	}
	p.insert(ctx, repositories.TableProcessedEvents, processed)

	buckets := p.aggregator.TakeDirty()
	aggs := make([]repositories.Record, 0, len(buckets))
	for i := range buckets {
		aggs = append(aggs, bucketRecord(&buckets[i]))
	}
	p.insert(ctx, repositories.TableEventAggregations, aggs)

	alerts := make([]repositories.Record, 0, len(result.Alerts))
	for i := range result.Alerts {
		alerts = append(alerts, alertRecord(&result.Alerts[i]))
	}
	p.insert(ctx, repositories.TableKPIAlerts, alerts)
}

func (p *Pipeline) insert(ctx context.Context, table string, records []repositories.Record) {
	if len(records) == 0 {
		return
	}
	if err := p.deps.Sink.Insert(ctx, table, records); err != nil {
		p.logger.Warn().Err(err).Str("table", table).Int("records", len(records)).Msg("Failed to persist pipeline output")
	}
}

func processedEventRecord(pe *entities.ProcessedEvent) repositories.Record {
	r := repositories.Record{
		"id":                   pe.ID,
		"original_event_id":    nil,
		"event_type":           string(pe.Event.Kind),
		"processed_at":         pe.ProcessedAt,
		"processing_time_ms":   float64(pe.ProcessingTime.Microseconds()) / 1000,
		"enrichments":          pe.Enrichments,
		"aggregations_updated": nonNil(pe.AggregationsUpdated),
		"alerts_triggered":     nonNil(pe.AlertsTriggered),
		"status":               string(pe.Status),
		"error_message":        nil,
	}
	if _, err := uuid.Parse(pe.Event.ID); err == nil {
		r["original_event_id"] = pe.Event.ID
	}
	if pe.Error != "" {
		r["error_message"] = pe.Error
	}
	return r
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func bucketRecord(b *entities.AggregationBucket) repositories.Record {
	dims := b.Dimensions
	if dims == nil {
		dims = map[string]string{}
	}
	return repositories.Record{
		"metric_name":      b.MetricName,
		"aggregation_type": string(b.AggregationType),
		"time_window":      string(b.TimeWindow),
		"dimensions":       dims,
		"value":            b.Value,
		"event_count":      b.EventCount,
		"window_start":     b.WindowStart,
		"window_end":       b.WindowEnd,
		"last_updated":     b.LastUpdated,
		"sealed":           b.Sealed,
	}
}

func alertRecord(a *entities.Alert) repositories.Record {
	return repositories.Record{
		"id":           a.ID,
		"kind":         a.Kind,
		"severity":     string(a.Severity),
		"message":      a.Message,
		"value":        a.Value,
		"threshold":    a.Threshold,
		"event_id":     a.EventID,
		"session_id":   a.SessionID,
		"triggered_at": a.TriggeredAt,
	}
}

func (p *Pipeline) recordStats(result entities.BatchResult, avgMs float64) entities.ProcessingStats {
	queued := p.queueLen()

	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	s := &p.stats
	first := s.TotalProcessed+s.TotalFailed+s.TotalSkipped == 0
	s.TotalProcessed += int64(result.Processed)
	s.TotalFailed += int64(result.Failed)
	s.TotalSkipped += int64(result.Skipped)
	if first {
		s.AvgProcessingTimeMs = avgMs
	} else {
		s.AvgProcessingTimeMs = (s.AvgProcessingTimeMs + avgMs) / 2
	}
	s.LastProcessedAt = p.now()
	s.QueueSize = queued
	return p.snapshotStatsLocked()
}

func (p *Pipeline) snapshotStatsLocked() entities.ProcessingStats {
	out := p.stats
	out.Uptime = p.now().Sub(p.startedAt)
	if secs := out.Uptime.Seconds(); secs > 0 {
		out.ThroughputPerSecond = float64(out.TotalProcessed+out.TotalFailed+out.TotalSkipped) / secs
	}
	return out
}

func (p *Pipeline) cacheRealTimeMetrics(ctx context.Context) {
	if p.deps.Cache == nil {
		return
	}
	data, err := json.Marshal(p.streaming.Snapshot())
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to encode real-time metrics")
		return
	}
	if err := p.deps.Cache.Set(ctx, RealTimeMetricsCacheKey, data, realTimeMetricsTTL); err != nil {
		p.logger.Debug().Err(err).Msg("Failed to cache real-time metrics")
	}
}

// RealTimeMetrics returns a copy of the streaming metric table.
func (p *Pipeline) RealTimeMetrics() map[string]entities.StreamingMetric {
	return p.streaming.Snapshot()
}

// ProcessingStats returns a snapshot of the processing counters.
func (p *Pipeline) ProcessingStats() entities.ProcessingStats {
	queued := p.queueLen()

	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	out := p.snapshotStatsLocked()
	out.QueueSize = queued
	return out
}

// Aggregations returns copies of the in-memory buckets matching f.
func (p *Pipeline) Aggregations(f entities.AggregationFilter) []entities.AggregationBucket {
	return p.aggregator.Buckets(f)
}
