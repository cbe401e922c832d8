package database

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/goccy/go-json"

	"github.com/zatekoja/kpitelemetry/internal/domain/repositories"
	"github.com/zatekoja/kpitelemetry/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/kpitelemetry/pkg/errors"
)

// EventSinkAdapter writes record batches with a single multi-row INSERT.
type EventSinkAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewEventSinkAdapter creates a new postgres-backed sink.
func NewEventSinkAdapter(client *postgres.Client) repositories.EventSink {
	return &EventSinkAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Insert writes all records to table in one statement.
func (a *EventSinkAdapter) Insert(ctx context.Context, table string, records []repositories.Record) error {
	if len(records) == 0 {
		return nil
	}

	rows, err := toRows(records)
	if err != nil {
		return apperrors.NewInternalError(fmt.Sprintf("failed to encode %s records", table), err)
	}

	query, args, err := a.db.Insert(table).Rows(rows...).ToSQL()
	if err != nil {
		return apperrors.NewInternalError(fmt.Sprintf("failed to build %s insert query", table), err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewExternalError(fmt.Sprintf("failed to insert into %s", table), err)
	}
	return nil
}

// toRows gives every row the same column set, filling gaps with NULL, and
// encodes maps and slices as JSON.
func toRows(records []repositories.Record) ([]interface{}, error) {
	colSet := make(map[string]struct{})
	for _, r := range records {
		for k := range r {
			colSet[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(colSet))
	for k := range colSet {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	rows := make([]interface{}, 0, len(records))
	for _, r := range records {
		row := make(goqu.Record, len(cols))
		for _, c := range cols {
			v, err := encodeValue(r[c])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", c, err)
			}
			row[c] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func encodeValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		if b, ok := v.([]byte); ok {
			return b, nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
	return v, nil
}
