package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/goccy/go-json"

	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
	"github.com/zatekoja/kpitelemetry/internal/domain/repositories"
	"github.com/zatekoja/kpitelemetry/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/kpitelemetry/pkg/errors"
)

const tableRetrievalQualityMetrics = "retrieval_quality_metrics"

// QualityMetricsAdapter implements the QualityMetricsRepository interface
type QualityMetricsAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewQualityMetricsAdapter creates a new quality metrics adapter
func NewQualityMetricsAdapter(client *postgres.Client) repositories.QualityMetricsRepository {
	return &QualityMetricsAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Insert stores one snapshot. The per-K maps are kept as jsonb.
func (a *QualityMetricsAdapter) Insert(ctx context.Context, m *entities.RetrievalQualityMetrics) error {
	precision, err := json.Marshal(m.PrecisionAtK)
	if err != nil {
		return apperrors.NewInternalError("failed to encode precision_at_k", err)
	}
	recall, err := json.Marshal(m.RecallAtK)
	if err != nil {
		return apperrors.NewInternalError("failed to encode recall_at_k", err)
	}
	ndcg, err := json.Marshal(m.NDCGAtK)
	if err != nil {
		return apperrors.NewInternalError("failed to encode ndcg_at_k", err)
	}

	record := goqu.Record{
		"id":                   m.ID,
		"query":                m.Query,
		"total_results":        m.TotalResults,
		"precision_at_k":       string(precision),
		"recall_at_k":          string(recall),
		"ndcg_at_k":            string(ndcg),
		"mean_reciprocal_rank": m.MRR,
		"average_precision":    m.AveragePrecision,
		"response_time_ms":     m.ResponseTimeMs,
		"session_id":           m.SessionID,
		"timestamp":            m.Timestamp,
	}

	query, args, err := a.db.Insert(tableRetrievalQualityMetrics).Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build quality metrics insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewExternalError("failed to insert quality metrics", err)
	}
	return nil
}

// ListSince returns snapshots recorded at or after since, oldest first.
func (a *QualityMetricsAdapter) ListSince(ctx context.Context, since time.Time) ([]*entities.RetrievalQualityMetrics, error) {
	query, args, err := a.db.
		Select("id", "query", "total_results", "precision_at_k", "recall_at_k", "ndcg_at_k",
			"mean_reciprocal_rank", "average_precision", "response_time_ms", "session_id", "timestamp").
		From(tableRetrievalQualityMetrics).
		Where(goqu.C("timestamp").Gte(since)).
		Order(goqu.I("timestamp").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build quality metrics query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewExternalError("failed to list quality metrics", err)
	}
	defer rows.Close()

	var out []*entities.RetrievalQualityMetrics
	for rows.Next() {
		var (
			m                       entities.RetrievalQualityMetrics
			precision, recall, ndcg []byte
			sessionID               sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Query, &m.TotalResults, &precision, &recall, &ndcg,
			&m.MRR, &m.AveragePrecision, &m.ResponseTimeMs, &sessionID, &m.Timestamp); err != nil {
			return nil, apperrors.NewInternalError("failed to scan quality metrics", err)
		}
		if err := decodeKMap(precision, &m.PrecisionAtK); err != nil {
			return nil, err
		}
		if err := decodeKMap(recall, &m.RecallAtK); err != nil {
			return nil, err
		}
		if err := decodeKMap(ndcg, &m.NDCGAtK); err != nil {
			return nil, err
		}
		m.SessionID = sessionID.String
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewExternalError("failed to iterate quality metrics", err)
	}
	return out, nil
}

func decodeKMap(data []byte, dst *map[int]float64) error {
	if len(data) == 0 {
		*dst = map[int]float64{}
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return apperrors.NewInternalError("failed to decode per-K metrics", err)
	}
	return nil
}
