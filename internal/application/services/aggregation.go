package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
)

// Aggregation metric names.
const (
	MetricEventCount         = "event_count"
	MetricSearchResponseTime = "search_response_time"
	MetricGenerationTime     = "generation_time"
)

// sealed buckets are kept in memory this long after their window ends
const bucketRetention = 24 * time.Hour

type contribution struct {
	metric string
	kind   entities.AggregationType
	dims   map[string]string
	value  float64
}

// Aggregator maintains time-windowed buckets for every configured window.
type Aggregator struct {
	windows []entities.TimeWindow
	loc     *time.Location
	grace   time.Duration

	mu      sync.RWMutex
	buckets map[string]*entities.AggregationBucket
	dirty   map[string]struct{}
}

// NewAggregator creates an aggregator over windows evaluated in loc.
func NewAggregator(windows []entities.TimeWindow, loc *time.Location, grace time.Duration) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{
		windows: windows,
		loc:     loc,
		grace:   grace,
		buckets: make(map[string]*entities.AggregationBucket),
		dirty:   make(map[string]struct{}),
	}
}

func contributionsFor(e *entities.Event) []contribution {
	out := []contribution{{
		metric: MetricEventCount,
		kind:   entities.AggregationCount,
		dims:   map[string]string{"event_type": string(e.Kind), "source": string(e.Source)},
		value:  1,
	}}

	if p, ok := e.Search(); ok && p.ResponseTimeMs > 0 {
		out = append(out, contribution{
			metric: MetricSearchResponseTime,
			kind:   entities.AggregationAvg,
			value:  p.ResponseTimeMs,
		})
	}
	if p, ok := e.Generation(); ok && p.GenerationTimeMs > 0 {
		model := p.AIModel
		if model == "" {
			model = "unknown"
		}
		out = append(out, contribution{
			metric: MetricGenerationTime,
			kind:   entities.AggregationAvg,
			dims:   map[string]string{"ai_model": model},
			value:  p.GenerationTimeMs,
		})
	}
	return out
}

// Update folds e into every window and returns the names of the buckets it
// changed. Contributions to windows closed before now-grace are skipped.
func (a *Aggregator) Update(e *entities.Event, now time.Time) ([]string, error) {
	if e.Timestamp.IsZero() {
		return nil, fmt.Errorf("event %s has no timestamp", e.ID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var updated []string
	for _, c := range contributionsFor(e) {
		for _, w := range a.windows {
			start, end := w.Bounds(e.Timestamp, a.loc)
			key := entities.BucketKey(c.metric, w, c.dims, start)

			b, ok := a.buckets[key]
			if ok && b.Sealed {
				continue
			}
			if a.closed(end, now) {
				if ok {
					b.Sealed = true
				}
				continue
			}
			if !ok {
				b = &entities.AggregationBucket{
					MetricName:      c.metric,
					AggregationType: c.kind,
					TimeWindow:      w,
					Dimensions:      c.dims,
					WindowStart:     start,
					WindowEnd:       end,
				}
				a.buckets[key] = b
			}
			b.Add(c.value, now)
			a.dirty[key] = struct{}{}
			updated = append(updated, b.Name())
		}
	}
	return updated, nil
}

func (a *Aggregator) closed(windowEnd, now time.Time) bool {
	return now.After(windowEnd.Add(a.grace))
}

// Seal marks elapsed windows immutable and forgets sealed buckets past retention.
func (a *Aggregator) Seal(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key, b := range a.buckets {
		if !b.Sealed && a.closed(b.WindowEnd, now) {
			b.Sealed = true
		}
		if b.Sealed && now.Sub(b.WindowEnd) > bucketRetention {
			if _, pending := a.dirty[key]; !pending {
				delete(a.buckets, key)
			}
		}
	}
}

// TakeDirty returns copies of buckets changed since the previous call.
func (a *Aggregator) TakeDirty() []entities.AggregationBucket {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]entities.AggregationBucket, 0, len(a.dirty))
	for key := range a.dirty {
		if b, ok := a.buckets[key]; ok {
			out = append(out, *b)
		}
	}
	a.dirty = make(map[string]struct{})
	sortBuckets(out)
	return out
}

// Buckets returns copies of the buckets matching f.
func (a *Aggregator) Buckets(f entities.AggregationFilter) []entities.AggregationBucket {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []entities.AggregationBucket
	for _, b := range a.buckets {
		if f.Matches(b) {
			out = append(out, *b)
		}
	}
	sortBuckets(out)
	return out
}

func sortBuckets(bs []entities.AggregationBucket) {
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].MetricName != bs[j].MetricName {
			return bs[i].MetricName < bs[j].MetricName
		}
		if bs[i].TimeWindow != bs[j].TimeWindow {
			return bs[i].TimeWindow < bs[j].TimeWindow
		}
		if !bs[i].WindowStart.Equal(bs[j].WindowStart) {
			return bs[i].WindowStart.Before(bs[j].WindowStart)
		}
		return entities.CanonicalDimensions(bs[i].Dimensions) < entities.CanonicalDimensions(bs[j].Dimensions)
	})
}
