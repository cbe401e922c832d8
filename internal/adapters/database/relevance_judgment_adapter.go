package database

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
	"github.com/zatekoja/kpitelemetry/internal/domain/repositories"
	"github.com/zatekoja/kpitelemetry/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/kpitelemetry/pkg/errors"
)

const tableRelevanceJudgments = "relevance_judgments"

// RelevanceJudgmentAdapter implements the JudgmentRepository interface
type RelevanceJudgmentAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewRelevanceJudgmentAdapter creates a new relevance judgment adapter
func NewRelevanceJudgmentAdapter(client *postgres.Client) repositories.JudgmentRepository {
	return &RelevanceJudgmentAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Upsert stores a judgment, replacing any earlier one for the same query and result.
func (a *RelevanceJudgmentAdapter) Upsert(ctx context.Context, j *entities.RelevanceJudgment) error {
	record := goqu.Record{
		"query":           j.Query,
		"result_id":       j.ResultID,
		"relevance_score": j.Score,
		"judged_by":       j.JudgedBy,
		"judged_at":       j.JudgedAt,
	}

	query, args, err := a.db.Insert(tableRelevanceJudgments).
		Rows(record).
		OnConflict(goqu.DoUpdate("query, result_id", goqu.Record{
			"relevance_score": goqu.I("excluded.relevance_score"),
			"judged_by":       goqu.I("excluded.judged_by"),
			"judged_at":       goqu.I("excluded.judged_at"),
		})).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build judgment upsert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewExternalError(fmt.Sprintf("failed to store judgment for %q", j.Query), err)
	}
	return nil
}

// ListByQuery returns every judgment recorded for a normalized query.
func (a *RelevanceJudgmentAdapter) ListByQuery(ctx context.Context, normalizedQuery string) ([]*entities.RelevanceJudgment, error) {
	query, args, err := a.db.
		Select("query", "result_id", "relevance_score", "judged_by", "judged_at").
		From(tableRelevanceJudgments).
		Where(goqu.Ex{"query": normalizedQuery}).
		Order(goqu.I("result_id").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build judgment query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewExternalError("failed to list judgments", err)
	}
	defer rows.Close()

	var judgments []*entities.RelevanceJudgment
	for rows.Next() {
		j := &entities.RelevanceJudgment{}
		if err := rows.Scan(&j.Query, &j.ResultID, &j.Score, &j.JudgedBy, &j.JudgedAt); err != nil {
			return nil, apperrors.NewInternalError("failed to scan judgment", err)
		}
		judgments = append(judgments, j)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewExternalError("failed to iterate judgments", err)
	}
	return judgments, nil
}
