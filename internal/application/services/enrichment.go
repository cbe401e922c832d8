package services

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
	"github.com/zatekoja/kpitelemetry/internal/domain/repositories"
)

// Generation speed categories.
const (
	SpeedFast     = "fast"
	SpeedNormal   = "normal"
	SpeedSlow     = "slow"
	SpeedVerySlow = "very_slow"
)

// Interaction categories.
const (
	InteractionResultClick = "result_click"
	InteractionButtonClick = "button_click"
	InteractionPageScroll  = "page_scroll"
	InteractionSearch      = "search_action"
	InteractionOther       = "other_interaction"
)

// Enricher derives calendar, kind-specific and session features.
type Enricher struct {
	sessions repositories.SessionEventReader
	loc      *time.Location
	logger   zerolog.Logger
}

// NewEnricher creates an enricher. sessions may be nil.
func NewEnricher(sessions repositories.SessionEventReader, loc *time.Location, logger zerolog.Logger) *Enricher {
	if loc == nil {
		loc = time.UTC
	}
	return &Enricher{sessions: sessions, loc: loc, logger: logger}
}

// Enrich returns the enrichment map for e. Session lookups that fail leave
// the session fields out.
func (en *Enricher) Enrich(ctx context.Context, e *entities.Event) (map[string]any, error) {
	ts := e.Timestamp.In(en.loc)
	out := map[string]any{
		"hour_of_day": ts.Hour(),
		"day_of_week": int(ts.Weekday()),
		"is_weekend":  ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday,
	}

	switch e.Kind {
	case entities.EventKindSearch:
		if p, ok := e.Search(); ok {
			out["query_length"] = len([]rune(p.Query))
			out["query_word_count"] = len(strings.Fields(p.Query))
		}
	case entities.EventKindGeneration:
		if p, ok := e.Generation(); ok {
			out["generation_speed_category"] = SpeedCategory(p.GenerationTimeMs)
		}
	case entities.EventKindUserInteraction:
		if p, ok := e.UserInteraction(); ok {
			out["interaction_category"] = InteractionCategory(p.Action, p.Element)
		}
	}

	if en.sessions != nil && e.SessionID != "" && e.SessionID != entities.SystemSessionID {
		prior, err := en.sessions.EventsBySession(ctx, e.SessionID)
		if err != nil {
			en.logger.Debug().Err(err).Str("session_id", e.SessionID).Msg("Session lookup failed")
		} else if len(prior) > 0 {
			out["session_event_count"] = len(prior)
			out["session_duration_ms"] = e.Timestamp.Sub(prior[0].Timestamp).Milliseconds()
		}
	}
	return out, nil
}

// SpeedCategory buckets a generation time.
func SpeedCategory(ms float64) string {
	switch {
	case ms < 1000:
		return SpeedFast
	case ms < 5000:
		return SpeedNormal
	case ms < 10000:
		return SpeedSlow
	default:
		return SpeedVerySlow
	}
}

// InteractionCategory maps an action/element pair onto the interaction taxonomy.
func InteractionCategory(action, element string) string {
	action = strings.ToLower(action)
	element = strings.ToLower(element)

	switch {
	case action == "click" && strings.Contains(element, "result"):
		return InteractionResultClick
	case action == "click" && strings.Contains(element, "button"):
		return InteractionButtonClick
	case action == "scroll":
		return InteractionPageScroll
	case strings.Contains(action, "search"):
		return InteractionSearch
	default:
		return InteractionOther
	}
}
