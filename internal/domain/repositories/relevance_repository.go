package repositories

import (
	"context"
	"time"

	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
)

// JudgmentRepository stores relevance judgments keyed by (query, result id).
type JudgmentRepository interface {
	// Upsert overwrites any earlier judgment for the same key.
	Upsert(ctx context.Context, judgment *entities.RelevanceJudgment) error
	ListByQuery(ctx context.Context, normalizedQuery string) ([]*entities.RelevanceJudgment, error)
}

// QualityMetricsRepository stores retrieval quality snapshots.
type QualityMetricsRepository interface {
	Insert(ctx context.Context, metrics *entities.RetrievalQualityMetrics) error
	ListSince(ctx context.Context, since time.Time) ([]*entities.RetrievalQualityMetrics, error)
}
