package database

import (
	"context"

	"github.com/zatekoja/kpitelemetry/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/kpitelemetry/pkg/errors"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS kpi_events (
		id          UUID PRIMARY KEY,
		type        TEXT NOT NULL,
		timestamp   TIMESTAMPTZ NOT NULL,
		session_id  TEXT NOT NULL,
		user_id     TEXT,
		source      TEXT NOT NULL,
		metadata    JSONB NOT NULL DEFAULT '{}'::jsonb
	)`,
	`CREATE INDEX IF NOT EXISTS idx_kpi_events_session ON kpi_events (session_id, timestamp)`,
	`CREATE TABLE IF NOT EXISTS processed_events (
		id                   UUID PRIMARY KEY,
		original_event_id    UUID,
		event_type           TEXT NOT NULL,
		processed_at         TIMESTAMPTZ NOT NULL,
		processing_time_ms   DOUBLE PRECISION NOT NULL,
		enrichments          JSONB,
		aggregations_updated JSONB,
		alerts_triggered     JSONB,
		status               TEXT NOT NULL,
		error_message        TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS event_aggregations (
		metric_name      TEXT NOT NULL,
		aggregation_type TEXT NOT NULL,
		time_window      TEXT NOT NULL,
		dimensions       JSONB NOT NULL,
		value            DOUBLE PRECISION NOT NULL,
		event_count      BIGINT NOT NULL,
		window_start     TIMESTAMPTZ NOT NULL,
		window_end       TIMESTAMPTZ NOT NULL,
		last_updated     TIMESTAMPTZ NOT NULL,
		sealed           BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS kpi_alerts (
		id           UUID PRIMARY KEY,
		kind         TEXT NOT NULL,
		severity     TEXT NOT NULL,
		message      TEXT NOT NULL,
		value        DOUBLE PRECISION,
		threshold    DOUBLE PRECISION,
		event_id     TEXT,
		session_id   TEXT,
		triggered_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS relevance_judgments (
		query           TEXT NOT NULL,
		result_id       TEXT NOT NULL,
		relevance_score SMALLINT NOT NULL CHECK (relevance_score BETWEEN 0 AND 4),
		judged_by       TEXT NOT NULL,
		judged_at       TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (query, result_id)
	)`,
	`CREATE TABLE IF NOT EXISTS retrieval_quality_metrics (
		id                   UUID PRIMARY KEY,
		query                TEXT NOT NULL,
		total_results        INTEGER NOT NULL,
		precision_at_k       JSONB NOT NULL,
		recall_at_k          JSONB NOT NULL,
		ndcg_at_k            JSONB NOT NULL,
		mean_reciprocal_rank DOUBLE PRECISION NOT NULL,
		average_precision    DOUBLE PRECISION NOT NULL,
		response_time_ms     DOUBLE PRECISION NOT NULL,
		session_id           TEXT,
		timestamp            TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_quality_metrics_ts ON retrieval_quality_metrics (timestamp)`,
}

// EnsureSchema creates the telemetry tables when they are missing.
func EnsureSchema(ctx context.Context, client *postgres.Client) error {
	for _, stmt := range schemaStatements {
		if _, err := client.DB().ExecContext(ctx, stmt); err != nil {
			return apperrors.NewInternalError("failed to apply schema", err)
		}
	}
	return nil
}
