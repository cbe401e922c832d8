package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/zatekoja/kpitelemetry"

// Setup installs OTLP trace and metric exporters plus Go runtime metrics.
// The returned function flushes and stops both providers.
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		_ = tracerProvider.Shutdown(ctx)
		_ = meterProvider.Shutdown(ctx)
		return nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(tracerProvider.Shutdown(ctx), meterProvider.Shutdown(ctx))
	}
	return shutdown, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError records an error in the span and marks it failed
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// Metrics holds the telemetry core's own instruments.
type Metrics struct {
	EventsCollected  metric.Int64Counter
	EventsDropped    metric.Int64Counter
	EventsFlushed    metric.Int64Counter
	FlushFailures    metric.Int64Counter
	FlushDuration    metric.Float64Histogram
	EventsProcessed  metric.Int64Counter
	BatchDuration    metric.Float64Histogram
	AlertsTriggered  metric.Int64Counter
	QualityAnalyses  metric.Int64Counter
	SinkBreakerTrips metric.Int64Counter
}

// InitMetrics creates instruments on the global meter provider. Without
// Setup the global provider is a no-op, which keeps tests silent.
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}

	var err error
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.EventsCollected, "kpi.collector.events.collected", "Events accepted by the collector"},
		{&m.EventsDropped, "kpi.collector.events.dropped", "Events dropped by validation"},
		{&m.EventsFlushed, "kpi.collector.events.flushed", "Events written to the sink"},
		{&m.FlushFailures, "kpi.collector.flush.failures", "Failed flush attempts"},
		{&m.EventsProcessed, "kpi.pipeline.events.processed", "Events processed by status"},
		{&m.AlertsTriggered, "kpi.alerts.triggered", "Alerts raised by kind"},
		{&m.QualityAnalyses, "kpi.quality.analyses", "Retrieval quality evaluations"},
		{&m.SinkBreakerTrips, "kpi.sink.breaker.state_changes", "Sink circuit breaker state changes"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if m.FlushDuration, err = meter.Float64Histogram(
		"kpi.collector.flush.duration",
		metric.WithDescription("Flush duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.BatchDuration, err = meter.Float64Histogram(
		"kpi.pipeline.batch.duration",
		metric.WithDescription("Pipeline batch duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// MustInitMetrics is InitMetrics for callers that run against the no-op provider.
func MustInitMetrics() *Metrics {
	m, err := InitMetrics()
	if err != nil {
		panic(err)
	}
	return m
}

// RecordDuration records d in milliseconds with attrs.
func RecordDuration(ctx context.Context, h metric.Float64Histogram, d time.Duration, attrs ...attribute.KeyValue) {
	h.Record(ctx, float64(d.Microseconds())/1000, metric.WithAttributes(attrs...))
}

// Add increments c by n with attrs.
func Add(ctx context.Context, c metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	c.Add(ctx, n, metric.WithAttributes(attrs...))
}
