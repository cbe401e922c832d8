package services

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
	"github.com/zatekoja/kpitelemetry/internal/domain/repositories"
)

// recordingSink keeps every batch it accepts and can be told to fail.
type recordingSink struct {
	mu      sync.Mutex
	batches map[string][][]repositories.Record
	fail    error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{batches: make(map[string][][]repositories.Record)}
}

func (s *recordingSink) Insert(_ context.Context, table string, records []repositories.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	cp := make([]repositories.Record, len(records))
	copy(cp, records)
	s.batches[table] = append(s.batches[table], cp)
	return nil
}

func (s *recordingSink) setFail(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

func (s *recordingSink) tableBatches(table string) [][]repositories.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches[table]
}

func (s *recordingSink) rows(table string) []repositories.Record {
	var out []repositories.Record
	for _, b := range s.tableBatches(table) {
		out = append(out, b...)
	}
	return out
}

type MockSessionEventReader struct {
	mock.Mock
}

func (m *MockSessionEventReader) EventsBySession(ctx context.Context, sessionID string) ([]repositories.SessionEvent, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repositories.SessionEvent), args.Error(1)
}

type MockDataQualityAnalyzer struct {
	mock.Mock
}

func (m *MockDataQualityAnalyzer) AnalyzeCompleteness(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockJudgmentRepository struct {
	mock.Mock
}

func (m *MockJudgmentRepository) Upsert(ctx context.Context, j *entities.RelevanceJudgment) error {
	return m.Called(ctx, j).Error(0)
}

func (m *MockJudgmentRepository) ListByQuery(ctx context.Context, q string) ([]*entities.RelevanceJudgment, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.RelevanceJudgment), args.Error(1)
}

type MockQualityMetricsRepository struct {
	mock.Mock
}

func (m *MockQualityMetricsRepository) Insert(ctx context.Context, qm *entities.RetrievalQualityMetrics) error {
	return m.Called(ctx, qm).Error(0)
}

func (m *MockQualityMetricsRepository) ListSince(ctx context.Context, since time.Time) ([]*entities.RetrievalQualityMetrics, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.RetrievalQualityMetrics), args.Error(1)
}

// capturingCollector records events handed to Collect.
type capturingCollector struct {
	mu     sync.Mutex
	events []*entities.Event
}

func (c *capturingCollector) Collect(_ context.Context, e *entities.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

type systemSample struct {
	name  string
	value float64
	unit  string
}

type capturingRecorder struct {
	mu      sync.Mutex
	samples []systemSample
}

func (r *capturingRecorder) CollectSystemPerformance(_ context.Context, name string, value float64, unit, _, _ string) {
	r.mu.Lock()
	r.samples = append(r.samples, systemSample{name, value, unit})
	r.mu.Unlock()
}

func searchEvent(session, query string, responseMs float64) *entities.Event {
	return &entities.Event{
		Kind:      entities.EventKindSearch,
		Timestamp: time.Date(2024, 3, 15, 10, 23, 45, 0, time.UTC),
		SessionID: session,
		Source:    entities.EventSourceAPI,
		Payload:   &entities.SearchPayload{Query: query, ResultsCount: 3, ResponseTimeMs: responseMs, HasResults: true},
	}
}
