package database

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/kpitelemetry/internal/domain/repositories"
	"github.com/zatekoja/kpitelemetry/internal/infrastructure/observability"
	"github.com/zatekoja/kpitelemetry/pkg/config"
	apperrors "github.com/zatekoja/kpitelemetry/pkg/errors"
)

// ErrSinkUnavailable is returned while the breaker is open.
var ErrSinkUnavailable = errors.New("event sink unavailable")

// BreakerSink guards an EventSink with a circuit breaker so a dead database
// fails flushes fast instead of holding the flush lock on timeouts.
type BreakerSink struct {
	next    repositories.EventSink
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewBreakerSink wraps next. metrics may be nil.
func NewBreakerSink(next repositories.EventSink, cfg config.SinkConfig, logger zerolog.Logger, metrics *observability.Metrics) *BreakerSink {
	settings := gobreaker.Settings{
		Name:        "event-sink",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Sink circuit breaker state changed")
			if metrics != nil {
				observability.Add(context.Background(), metrics.SinkBreakerTrips, 1, attribute.String("to", to.String()))
			}
		},
	}
	return &BreakerSink{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// Insert forwards to the wrapped sink unless the breaker is open.
func (s *BreakerSink) Insert(ctx context.Context, table string, records []repositories.Record) error {
	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.next.Insert(ctx, table, records)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.NewExternalError("event sink circuit open", errors.Join(ErrSinkUnavailable, err))
	}
	return err
}

// State reports the breaker state for status endpoints and logs.
func (s *BreakerSink) State() string {
	return s.breaker.State().String()
}
