package entities

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// TimeWindow is an aggregation granularity
type TimeWindow string

const (
	TimeWindowMinute TimeWindow = "minute"
	TimeWindowHour   TimeWindow = "hour"
	TimeWindowDay    TimeWindow = "day"
	TimeWindowWeek   TimeWindow = "week"
	TimeWindowMonth  TimeWindow = "month"
)

// TimeWindows returns every granularity, finest first.
func TimeWindows() []TimeWindow {
	return []TimeWindow{TimeWindowMinute, TimeWindowHour, TimeWindowDay, TimeWindowWeek, TimeWindowMonth}
}

// ParseTimeWindow converts a configured name into a TimeWindow.
func ParseTimeWindow(s string) (TimeWindow, error) {
	switch w := TimeWindow(strings.ToLower(strings.TrimSpace(s))); w {
	case TimeWindowMinute, TimeWindowHour, TimeWindowDay, TimeWindowWeek, TimeWindowMonth:
		return w, nil
	}
	return "", fmt.Errorf("unknown time window %q", s)
}

// Bounds returns the window containing t, evaluated in loc. start is floor
// aligned; end is the next window's start minus one millisecond. Weeks start
// on Sunday.
func (w TimeWindow) Bounds(t time.Time, loc *time.Location) (start, end time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	y, mo, d := t.Date()

	var next time.Time
	switch w {
	case TimeWindowMinute:
		start = time.Date(y, mo, d, t.Hour(), t.Minute(), 0, 0, loc)
		next = start.Add(time.Minute)
	case TimeWindowHour:
		start = time.Date(y, mo, d, t.Hour(), 0, 0, 0, loc)
		next = start.Add(time.Hour)
	case TimeWindowDay:
		start = time.Date(y, mo, d, 0, 0, 0, 0, loc)
		next = time.Date(y, mo, d+1, 0, 0, 0, 0, loc)
	case TimeWindowWeek:
		offset := int(t.Weekday())
		start = time.Date(y, mo, d-offset, 0, 0, 0, 0, loc)
		next = time.Date(y, mo, d-offset+7, 0, 0, 0, 0, loc)
	case TimeWindowMonth:
		start = time.Date(y, mo, 1, 0, 0, 0, 0, loc)
		next = time.Date(y, mo+1, 1, 0, 0, 0, 0, loc)
	default:
		return t, t
	}
	return start, next.Add(-time.Millisecond)
}

// AggregationType is how contributions are combined
type AggregationType string

const (
	AggregationCount AggregationType = "count"
	AggregationAvg   AggregationType = "avg"
)

// AggregationBucket accumulates one metric for one window and dimension set.
type AggregationBucket struct {
	MetricName      string            `json:"metric_name"`
	AggregationType AggregationType   `json:"aggregation_type"`
	TimeWindow      TimeWindow        `json:"time_window"`
	Dimensions      map[string]string `json:"dimensions"`
	Value           float64           `json:"value"`
	EventCount      int64             `json:"event_count"`
	WindowStart     time.Time         `json:"window_start"`
	WindowEnd       time.Time         `json:"window_end"`
	LastUpdated     time.Time         `json:"last_updated"`
	Sealed          bool              `json:"sealed"`
}

// BucketKey identifies a bucket across all windows.
func BucketKey(metric string, window TimeWindow, dims map[string]string, windowStart time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%d", metric, window, CanonicalDimensions(dims), windowStart.UnixMilli())
}

// Key returns the bucket's identity.
func (b *AggregationBucket) Key() string {
	return BucketKey(b.MetricName, b.TimeWindow, b.Dimensions, b.WindowStart)
}

// Name is the label reported in a processed event, e.g. "event_count_hour".
func (b *AggregationBucket) Name() string {
	return b.MetricName + "_" + string(b.TimeWindow)
}

// Add folds one contribution into the bucket.
func (b *AggregationBucket) Add(v float64, at time.Time) {
	switch b.AggregationType {
	case AggregationCount:
		b.Value += v
	case AggregationAvg:
		b.Value = (b.Value*float64(b.EventCount) + v) / float64(b.EventCount+1)
	}
	b.EventCount++
	b.LastUpdated = at
}

// CanonicalDimensions renders dims as sorted k=v pairs.
func CanonicalDimensions(dims map[string]string) string {
	if len(dims) == 0 {
		return ""
	}
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + dims[k]
	}
	return strings.Join(parts, ",")
}

// AggregationFilter narrows an aggregation listing. Zero fields match all.
type AggregationFilter struct {
	MetricName string
	TimeWindow TimeWindow
	Since      time.Time
}

// Matches reports whether b passes the filter.
func (f AggregationFilter) Matches(b *AggregationBucket) bool {
	if f.MetricName != "" && b.MetricName != f.MetricName {
		return false
	}
	if f.TimeWindow != "" && b.TimeWindow != f.TimeWindow {
		return false
	}
	if !f.Since.IsZero() && b.WindowEnd.Before(f.Since) {
		return false
	}
	return true
}
