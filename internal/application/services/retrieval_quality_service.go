package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
	"github.com/zatekoja/kpitelemetry/internal/domain/repositories"
	"github.com/zatekoja/kpitelemetry/internal/evaluation"
	"github.com/zatekoja/kpitelemetry/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/kpitelemetry/pkg/errors"
)

const (
	defaultJudgedBy          = "human"
	defaultAnalysisHours     = 24
	successPrecisionAt5Floor = 0.5
)

// EventCollector is the part of the Collector the quality service feeds.
type EventCollector interface {
	Collect(ctx context.Context, event *entities.Event)
}

// RetrievalQualityService scores search results against relevance judgments
// and reports per-query performance over time.
type RetrievalQualityService struct {
	judgments repositories.JudgmentRepository
	snapshots repositories.QualityMetricsRepository
	collector EventCollector
	logger    zerolog.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewRetrievalQualityService creates a new retrieval quality service.
// collector may be nil.
func NewRetrievalQualityService(
	judgments repositories.JudgmentRepository,
	snapshots repositories.QualityMetricsRepository,
	collector EventCollector,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *RetrievalQualityService {
	if metrics == nil {
		metrics = observability.MustInitMetrics()
	}
	return &RetrievalQualityService{
		judgments: judgments,
		snapshots: snapshots,
		collector: collector,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// AddRelevanceJudgment clamps score to 0-4 and upserts it under the
// normalized query.
func (s *RetrievalQualityService) AddRelevanceJudgment(ctx context.Context, query, resultID string, score int, judgedBy string) error {
	normalized := entities.NormalizeQuery(query)
	if normalized == "" {
		return apperrors.NewValidationError("query is required")
	}
	resultID = strings.TrimSpace(resultID)
	if resultID == "" {
		return apperrors.NewValidationError("result id is required")
	}
	if judgedBy == "" {
		judgedBy = defaultJudgedBy
	}

	return s.judgments.Upsert(ctx, &entities.RelevanceJudgment{
		Query:    normalized,
		ResultID: resultID,
		Score:    entities.ClampRelevance(score),
		JudgedBy: judgedBy,
		JudgedAt: s.now().UTC(),
	})
}

// AnalyzeSearchQuality scores results against stored judgments, persists the
// snapshot and reports a search event. Store failures never reach the caller.
func (s *RetrievalQualityService) AnalyzeSearchQuality(ctx context.Context, query string, results []entities.SearchResult, sessionID string, responseTimeMs float64) *entities.RetrievalQualityMetrics {
	ctx, span := observability.StartSpan(ctx, "quality.analyze_search", attribute.Int("results", len(results)))
	defer span.End()

	normalized := entities.NormalizeQuery(query)
	judgments := evaluation.Judgments{}

	stored, err := s.judgments.ListByQuery(ctx, normalized)
	if err != nil {
		observability.RecordError(span, err)
		s.logger.Warn().Err(err).Str("query", normalized).Msg("Failed to load judgments, scoring without them")
	}
	for _, j := range stored {
		judgments[j.ResultID] = j.Score
	}

	m := s.score(normalized, results, judgments, sessionID, responseTimeMs)

	if err := s.snapshots.Insert(ctx, m); err != nil {
		observability.RecordError(span, err)
		s.logger.Warn().Err(err).Str("query", normalized).Msg("Failed to store quality metrics")
	}
	s.report(ctx, query, m)
	observability.Add(ctx, s.metrics.QualityAnalyses, 1, attribute.String("mode", "judged"))
	return m
}

// EvaluateSearchResults scores results against an in-memory ground truth.
// Nothing is stored or reported.
func (s *RetrievalQualityService) EvaluateSearchResults(ctx context.Context, query string, results []entities.SearchResult, groundTruthIDs []string, sessionID string, responseTimeMs float64) *entities.RetrievalQualityMetrics {
	judgments := evaluation.SyntheticJudgments(resultIDs(results), groundTruthIDs)
	m := s.score(entities.NormalizeQuery(query), results, judgments, sessionID, responseTimeMs)
	observability.Add(ctx, s.metrics.QualityAnalyses, 1, attribute.String("mode", "synthetic"))
	return m
}

func (s *RetrievalQualityService) score(query string, results []entities.SearchResult, judgments evaluation.Judgments, sessionID string, responseTimeMs float64) *entities.RetrievalQualityMetrics {
	scores := evaluation.Score(judgments, resultIDs(results))
	return &entities.RetrievalQualityMetrics{
		ID:               uuid.NewString(),
		Query:            query,
		TotalResults:     len(results),
		PrecisionAtK:     scores.PrecisionAtK,
		RecallAtK:        scores.RecallAtK,
		NDCGAtK:          scores.NDCGAtK,
		MRR:              scores.MRR,
		AveragePrecision: scores.AveragePrecision,
		ResponseTimeMs:   responseTimeMs,
		SessionID:        sessionID,
		Timestamp:        s.now().UTC(),
	}
}

// report emits the analyzed search through the collector with the caller's
// query text, as an api search would be.
func (s *RetrievalQualityService) report(ctx context.Context, query string, m *entities.RetrievalQualityMetrics) {
	if s.collector == nil || m.Query == "" {
		return
	}
	sessionID := m.SessionID
	if sessionID == "" {
		sessionID = entities.SystemSessionID
	}
	s.collector.Collect(ctx, &entities.Event{
		Kind:      entities.EventKindSearch,
		Timestamp: m.Timestamp,
		SessionID: sessionID,
		Source:    entities.EventSourceAPI,
		Payload: &entities.SearchPayload{
			Query:          query,
			ResultsCount:   m.TotalResults,
			ResponseTimeMs: m.ResponseTimeMs,
			HasResults:     m.TotalResults > 0,
		},
		Extra: map[string]any{
			"quality_analysis": true,
			"precision_at_5":   m.PrecisionAtK[5],
			"ndcg_at_10":       m.NDCGAtK[10],
			"mrr":              m.MRR,
		},
	})
}

func resultIDs(results []entities.SearchResult) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		id := r.ID
		if id == "" {
			id = r.SKU
		}
		ids = append(ids, id)
	}
	return ids
}

// QueryPerformanceAnalysis groups the snapshots of the last hours by query.
// hours <= 0 means 24. Results are ordered by frequency, busiest first.
func (s *RetrievalQualityService) QueryPerformanceAnalysis(ctx context.Context, hours int) ([]entities.QueryPerformance, error) {
	if hours <= 0 {
		hours = defaultAnalysisHours
	}
	since := s.now().Add(-time.Duration(hours) * time.Hour)

	snapshots, err := s.snapshots.ListSince(ctx, since)
	if err != nil {
		return nil, apperrors.NewExternalError("failed to load quality snapshots", err)
	}

	type acc struct {
		perf      entities.QueryPerformance
		successes int
	}
	byQuery := make(map[string]*acc)
	for _, m := range snapshots {
		a, ok := byQuery[m.Query]
		if !ok {
			a = &acc{perf: entities.QueryPerformance{Query: m.Query}}
			byQuery[m.Query] = a
		}
		a.perf.Frequency++
		a.perf.AvgPrecisionAt5 += m.PrecisionAtK[5]
		a.perf.AvgRecallAt5 += m.RecallAtK[5]
		a.perf.AvgMRR += m.MRR
		a.perf.AvgResponseTimeMs += m.ResponseTimeMs
		if m.PrecisionAtK[5] > successPrecisionAt5Floor {
			a.successes++
		}
		if m.Timestamp.After(a.perf.LastAnalyzed) {
			a.perf.LastAnalyzed = m.Timestamp
		}
	}

	out := make([]entities.QueryPerformance, 0, len(byQuery))
	for _, a := range byQuery {
		n := float64(a.perf.Frequency)
		a.perf.AvgPrecisionAt5 /= n
		a.perf.AvgRecallAt5 /= n
		a.perf.AvgMRR /= n
		a.perf.AvgResponseTimeMs /= n
		a.perf.SuccessRate = float64(a.successes) / n
		out = append(out, a.perf)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Query < out[j].Query
	})
	return out, nil
}
