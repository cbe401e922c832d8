package database

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
	"github.com/zatekoja/kpitelemetry/internal/domain/providers"
	"github.com/zatekoja/kpitelemetry/internal/domain/repositories"
)

// CachedJudgmentAdapter wraps a JudgmentRepository with a read-through cache.
type CachedJudgmentAdapter struct {
	adapter repositories.JudgmentRepository
	cache   providers.CacheProvider
	ttl     time.Duration
	logger  zerolog.Logger
}

// NewCachedJudgmentAdapter creates a new cached judgment adapter
func NewCachedJudgmentAdapter(adapter repositories.JudgmentRepository, cache providers.CacheProvider, ttl time.Duration, logger zerolog.Logger) repositories.JudgmentRepository {
	return &CachedJudgmentAdapter{
		adapter: adapter,
		cache:   cache,
		ttl:     ttl,
		logger:  logger,
	}
}

func judgmentsCacheKey(normalizedQuery string) string {
	return fmt.Sprintf("kpi:judgments:%s", normalizedQuery)
}

// ListByQuery serves from cache when possible.
func (a *CachedJudgmentAdapter) ListByQuery(ctx context.Context, normalizedQuery string) ([]*entities.RelevanceJudgment, error) {
	key := judgmentsCacheKey(normalizedQuery)

	if cached, err := a.cache.Get(ctx, key); err == nil {
		var judgments []*entities.RelevanceJudgment
		if err := json.Unmarshal(cached, &judgments); err == nil {
			return judgments, nil
		}
		a.logger.Warn().Err(err).Str("query", normalizedQuery).Msg("Failed to decode cached judgments")
	}

	judgments, err := a.adapter.ListByQuery(ctx, normalizedQuery)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(judgments); err == nil {
		if err := a.cache.Set(ctx, key, data, a.ttl); err != nil {
			a.logger.Warn().Err(err).Str("query", normalizedQuery).Msg("Failed to cache judgments")
		}
	}
	return judgments, nil
}

// Upsert writes through and drops the cached list for the query.
func (a *CachedJudgmentAdapter) Upsert(ctx context.Context, judgment *entities.RelevanceJudgment) error {
	if err := a.adapter.Upsert(ctx, judgment); err != nil {
		return err
	}
	if err := a.cache.Delete(ctx, judgmentsCacheKey(judgment.Query)); err != nil {
		a.logger.Warn().Err(err).Str("query", judgment.Query).Msg("Failed to invalidate cached judgments")
	}
	return nil
}
