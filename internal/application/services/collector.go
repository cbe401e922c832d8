package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
	"github.com/zatekoja/kpitelemetry/internal/domain/providers"
	"github.com/zatekoja/kpitelemetry/internal/domain/repositories"
	"github.com/zatekoja/kpitelemetry/internal/infrastructure/observability"
	"github.com/zatekoja/kpitelemetry/pkg/config"
)

// QueueStatus is a read-only view of the collector queue.
type QueueStatus struct {
	QueueLength int  `json:"queue_length"`
	IsFlushing  bool `json:"is_flushing"`
}

// CollectorStats counts what the collector has done since start.
type CollectorStats struct {
	Received      int64     `json:"received"`
	Dropped       int64     `json:"dropped"`
	Flushed       int64     `json:"flushed"`
	Flushes       int64     `json:"flushes"`
	FailedFlushes int64     `json:"failed_flushes"`
	LastError     string    `json:"last_error,omitempty"`
	LastFlushAt   time.Time `json:"last_flush_at"`
}

// TokenUsage is the optional token accounting of a generation.
type TokenUsage struct {
	Prompt     int
	Completion int
}

// Collector validates, anonymizes and buffers events, and flushes them to the
// sink in batches. Failed batches go back to the head of the queue.
type Collector struct {
	sink    repositories.EventSink
	bus     providers.EventBus
	cfg     config.CollectorConfig
	logger  zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu    sync.Mutex
	queue []*entities.Event

	// flushMu serializes flushes; flushing only feeds QueueStatus.
	flushMu  sync.Mutex
	flushing atomic.Bool

	received      atomic.Int64
	dropped       atomic.Int64
	flushed       atomic.Int64
	flushes       atomic.Int64
	failedFlushes atomic.Int64

	statsMu     sync.Mutex
	lastError   string
	lastFlushAt time.Time
}

// NewCollector creates a collector. bus may be nil, in which case accepted
// events are not published for the pipeline.
func NewCollector(sink repositories.EventSink, bus providers.EventBus, cfg config.CollectorConfig, logger zerolog.Logger, metrics *observability.Metrics) *Collector {
	if metrics == nil {
		metrics = observability.MustInitMetrics()
	}
	return &Collector{
		sink:    sink,
		bus:     bus,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Collect validates, anonymizes and enqueues event. It never fails: invalid
// events are logged and dropped. Reaching the batch size triggers a flush in
// the caller unless one is already running.
func (c *Collector) Collect(ctx context.Context, event *entities.Event) {
	if err := ValidateEvent(event); err != nil {
		c.dropped.Add(1)
		observability.Add(ctx, c.metrics.EventsDropped, 1)
		c.logger.Warn().Err(err).Msg("Dropping invalid event")
		return
	}

	clean := Anonymize(event)
	if clean.ID == "" {
		clean.ID = uuid.NewString()
	}

	c.mu.Lock()
	c.queue = append(c.queue, clean)
	size := len(c.queue)
	c.mu.Unlock()

	c.received.Add(1)
	observability.Add(ctx, c.metrics.EventsCollected, 1, attribute.String("type", string(clean.Kind)))

	if c.bus != nil {
		if err := c.bus.Publish(ctx, providers.EventChannelKPIEvents, clean); err != nil {
			c.logger.Warn().Err(err).Str("event_id", clean.ID).Msg("Failed to publish event")
		}
	}

	if size >= c.cfg.BatchSize {
		c.tryFlush(ctx)
	}
}

// CollectSearch records a completed search.
func (c *Collector) CollectSearch(ctx context.Context, query string, resultsCount int, responseTimeMs float64, sessionID, searchType, userID string) {
	c.Collect(ctx, &entities.Event{
		Kind:      entities.EventKindSearch,
		Timestamp: c.now().UTC(),
		SessionID: sessionID,
		UserID:    userID,
		Source:    entities.EventSourceAPI,
		Payload: &entities.SearchPayload{
			Query:          query,
			ResultsCount:   resultsCount,
			ResponseTimeMs: responseTimeMs,
			HasResults:     resultsCount > 0,
			SearchType:     searchType,
		},
	})
}

// CollectGeneration records one AI content generation.
func (c *Collector) CollectGeneration(ctx context.Context, sku, contentType string, qualityScore, generationTimeMs float64, aiModel, sessionID, userID string, tokens TokenUsage) {
	c.Collect(ctx, &entities.Event{
		Kind:      entities.EventKindGeneration,
		Timestamp: c.now().UTC(),
		SessionID: sessionID,
		UserID:    userID,
		Source:    entities.EventSourceAPI,
		Payload: &entities.GenerationPayload{
			SKU:              sku,
			ContentType:      contentType,
			QualityScore:     qualityScore,
			GenerationTimeMs: generationTimeMs,
			AIModel:          aiModel,
			PromptTokens:     tokens.Prompt,
			CompletionTokens: tokens.Completion,
		},
	})
}

// CollectReview records a reviewer's decision on generated content.
func (c *Collector) CollectReview(ctx context.Context, contentID string, action entities.ReviewAction, sessionID, userID string, reviewTimeMs, qualityRating float64) {
	c.Collect(ctx, &entities.Event{
		Kind:      entities.EventKindReview,
		Timestamp: c.now().UTC(),
		SessionID: sessionID,
		UserID:    userID,
		Source:    entities.EventSourceDashboard,
		Payload: &entities.ReviewPayload{
			ContentID:     contentID,
			Action:        action,
			ReviewTimeMs:  reviewTimeMs,
			ChangesMade:   action == entities.ReviewActionEdit,
			QualityRating: qualityRating,
		},
	})
}

// CollectDataQuality records a catalog completeness measurement.
func (c *Collector) CollectDataQuality(ctx context.Context, total, complete, normalized int, qualityScore float64, sessionID string, issues ...string) {
	if sessionID == "" {
		sessionID = entities.SystemSessionID
	}
	c.Collect(ctx, &entities.Event{
		Kind:      entities.EventKindDataQuality,
		Timestamp: c.now().UTC(),
		SessionID: sessionID,
		Source:    entities.EventSourceSystem,
		Payload: &entities.DataQualityPayload{
			TotalProducts:      total,
			CompleteProducts:   complete,
			NormalizedProducts: normalized,
			QualityScore:       qualityScore,
			IssuesFound:        issues,
		},
	})
}

// CollectSystemPerformance records one sampled system metric.
func (c *Collector) CollectSystemPerformance(ctx context.Context, metricName string, value float64, unit, sessionID, component string) {
	if sessionID == "" {
		sessionID = entities.SystemSessionID
	}
	c.Collect(ctx, &entities.Event{
		Kind:      entities.EventKindSystemPerformance,
		Timestamp: c.now().UTC(),
		SessionID: sessionID,
		Source:    entities.EventSourceSystem,
		Payload: &entities.SystemPerformancePayload{
			MetricName:        metricName,
			MetricValue:       value,
			MetricUnit:        unit,
			ThresholdBreached: breachesSystemThreshold(metricName, value),
			SystemComponent:   component,
		},
	})
}

// CollectUserInteraction records a dashboard interaction.
func (c *Collector) CollectUserInteraction(ctx context.Context, action, element, page, sessionID, userID string, timeOnPageMs float64) {
	c.Collect(ctx, &entities.Event{
		Kind:      entities.EventKindUserInteraction,
		Timestamp: c.now().UTC(),
		SessionID: sessionID,
		UserID:    userID,
		Source:    entities.EventSourceDashboard,
		Payload: &entities.UserInteractionPayload{
			Action:       action,
			Element:      element,
			Page:         page,
			TimeOnPageMs: timeOnPageMs,
		},
	})
}

// GenerateSessionID returns an id of the form session_<unix ms>_<16 hex>.
func (c *Collector) GenerateSessionID() string {
	return NewSessionID(c.now())
}

// NewSessionID builds a session id stamped with at.
func NewSessionID(at time.Time) string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("session_%d_%s", at.UnixMilli(), hex.EncodeToString(b[:]))
}

// ForceFlush waits for any running flush and then writes the whole queue as
// one batch. On failure the batch is back at the head of the queue.
func (c *Collector) ForceFlush(ctx context.Context) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	return c.flush(ctx)
}

func (c *Collector) tryFlush(ctx context.Context) {
	if !c.flushMu.TryLock() {
		return
	}
	defer c.flushMu.Unlock()
	if err := c.flush(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Flush failed, batch requeued")
	}
}

// flush requires flushMu.
func (c *Collector) flush(ctx context.Context) error {
	c.mu.Lock()
	batch := c.queue
	c.queue = nil
	c.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	c.flushing.Store(true)
	defer c.flushing.Store(false)

	ctx, span := observability.StartSpan(ctx, "collector.flush", attribute.Int("batch_size", len(batch)))
	defer span.End()

	start := time.Now()
	records := make([]repositories.Record, len(batch))
	for i, e := range batch {
		records[i] = eventRecord(e)
	}

	err := c.sink.Insert(ctx, repositories.TableKPIEvents, records)
	observability.RecordDuration(ctx, c.metrics.FlushDuration, time.Since(start))
	if err != nil {
		c.mu.Lock()
		c.queue = append(batch, c.queue...)
		c.mu.Unlock()

		c.failedFlushes.Add(1)
		observability.Add(ctx, c.metrics.FlushFailures, 1)
		observability.RecordError(span, err)
		c.statsMu.Lock()
		c.lastError = err.Error()
		c.statsMu.Unlock()
		return fmt.Errorf("flush %d events: %w", len(batch), err)
	}

	c.flushed.Add(int64(len(batch)))
	c.flushes.Add(1)
	observability.Add(ctx, c.metrics.EventsFlushed, int64(len(batch)))
	c.statsMu.Lock()
	c.lastFlushAt = c.now()
	c.statsMu.Unlock()

	observability.LoggerFromContext(ctx, c.logger).Debug().Int("events", len(batch)).Dur("took", time.Since(start)).Msg("Flushed events")
	return nil
}

func eventRecord(e *entities.Event) repositories.Record {
	r := repositories.Record{
		"id":         e.ID,
		"type":       string(e.Kind),
		"timestamp":  e.Timestamp,
		"session_id": e.SessionID,
		"user_id":    nil,
		"source":     string(e.Source),
		"metadata":   e.Attributes(),
	}
	if e.UserID != "" {
		r["user_id"] = e.UserID
	}
	return r
}

// Serve flushes every FlushInterval until ctx is cancelled, then makes one
// final flush bounded by ShutdownGrace.
func (c *Collector) Serve(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdownFlush(ctx)
			return ctx.Err()
		case <-ticker.C:
			c.tryFlush(ctx)
		}
	}
}

func (c *Collector) shutdownFlush(parent context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.cfg.ShutdownGrace)
	defer cancel()

	pending := c.QueueStatus().QueueLength
	if err := c.ForceFlush(ctx); err != nil {
		c.logger.Error().Err(err).Int("pending", pending).Msg("Final flush failed")
		return
	}
	c.logger.Info().Int("events", pending).Msg("Final flush complete")
}

// String names the service in supervisor logs.
func (c *Collector) String() string { return "event-collector" }

// QueueStatus reports the queue length and whether a flush is running.
func (c *Collector) QueueStatus() QueueStatus {
	c.mu.Lock()
	n := len(c.queue)
	c.mu.Unlock()
	return QueueStatus{QueueLength: n, IsFlushing: c.flushing.Load()}
}

// Stats returns a snapshot of the collector counters.
func (c *Collector) Stats() CollectorStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return CollectorStats{
		Received:      c.received.Load(),
		Dropped:       c.dropped.Load(),
		Flushed:       c.flushed.Load(),
		Flushes:       c.flushes.Load(),
		FailedFlushes: c.failedFlushes.Load(),
		LastError:     c.lastError,
		LastFlushAt:   c.lastFlushAt,
	}
}
