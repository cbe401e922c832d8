package database

import (
	"context"

	"github.com/doug-martin/goqu/v9"

	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
	"github.com/zatekoja/kpitelemetry/internal/domain/repositories"
	"github.com/zatekoja/kpitelemetry/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/kpitelemetry/pkg/errors"
)

// SessionEventAdapter reads persisted collector events back by session.
type SessionEventAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewSessionEventAdapter creates a new session event reader
func NewSessionEventAdapter(client *postgres.Client) repositories.SessionEventReader {
	return &SessionEventAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// EventsBySession returns the kind and timestamp of every stored event of a session.
func (a *SessionEventAdapter) EventsBySession(ctx context.Context, sessionID string) ([]repositories.SessionEvent, error) {
	query, args, err := a.db.
		Select("type", "timestamp").
		From(repositories.TableKPIEvents).
		Where(goqu.Ex{"session_id": sessionID}).
		Order(goqu.I("timestamp").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build session events query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewExternalError("failed to query session events", err)
	}
	defer rows.Close()

	var events []repositories.SessionEvent
	for rows.Next() {
		var (
			kind string
			ev   repositories.SessionEvent
		)
		if err := rows.Scan(&kind, &ev.Timestamp); err != nil {
			return nil, apperrors.NewInternalError("failed to scan session event", err)
		}
		ev.Kind = entities.EventKind(kind)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewExternalError("failed to iterate session events", err)
	}
	return events, nil
}
