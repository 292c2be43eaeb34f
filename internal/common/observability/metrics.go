package observability

import (
	"context"
	"fmt"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Observability bundles the OpenTelemetry meter and tracer used by the service.
// A nil *Observability is valid and records nothing.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          otelmetric.Meter
	tracer         trace.Tracer

	requestCounter  otelmetric.Int64Counter
	requestDuration otelmetric.Float64Histogram
	rowsScored      otelmetric.Int64Counter
}

type options struct {
	registerer    promclient.Registerer
	spanProcessor sdktrace.SpanProcessor
	sampleRatio   float64
	tracing       bool
}

type Option func(*options)

// WithRegisterer sets the Prometheus registerer the metric exporter registers with.
func WithRegisterer(reg promclient.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithSpanProcessor adds a span processor; tests pass a tracetest.SpanRecorder.
func WithSpanProcessor(sp sdktrace.SpanProcessor) Option {
	return func(o *options) { o.spanProcessor = sp }
}

// WithTracing enables span sampling at the given ratio.
func WithTracing(enabled bool, sampleRatio float64) Option {
	return func(o *options) {
		o.tracing = enabled
		o.sampleRatio = sampleRatio
	}
}

func New(serviceName string, opts ...Option) (*Observability, error) {
	o := options{registerer: promclient.DefaultRegisterer, sampleRatio: 1}
	for _, opt := range opts {
		opt(&o)
	}

	exporter, err := prometheus.New(prometheus.WithRegisterer(o.registerer))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(serviceName)

	sampler := sdktrace.NeverSample()
	if o.tracing {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(o.sampleRatio))
	}
	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithSampler(sampler)}
	if o.spanProcessor != nil {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(o.spanProcessor))
	}
	tracerProvider := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tracerProvider)

	requestCounter, err := meter.Int64Counter(
		"http.server.requests",
		otelmetric.WithDescription("Number of HTTP requests served"),
	)
	if err != nil {
		return nil, err
	}
	requestDuration, err := meter.Float64Histogram(
		"http.server.duration",
		otelmetric.WithDescription("HTTP request duration"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	rowsScored, err := meter.Int64Counter(
		"batch.rows",
		otelmetric.WithDescription("Rows scored by batch jobs"),
	)
	if err != nil {
		return nil, err
	}

	return &Observability{
		meterProvider:   provider,
		tracerProvider:  tracerProvider,
		meter:           meter,
		tracer:          tracerProvider.Tracer(serviceName),
		requestCounter:  requestCounter,
		requestDuration: requestDuration,
		rowsScored:      rowsScored,
	}, nil
}

// StartSpan starts a span named name. The caller must End the returned span.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o == nil || o.tracer == nil {
		return noop.NewTracerProvider().Tracer("").Start(ctx, name)
	}
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (o *Observability) RecordRequest(ctx context.Context, route string, status int, duration time.Duration) {
	if o == nil || o.requestCounter == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	o.requestCounter.Add(ctx, 1, attrs)
	o.requestDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

func (o *Observability) RecordRowsScored(ctx context.Context, kind string, rows int) {
	if o == nil || o.rowsScored == nil {
		return
	}
	o.rowsScored.Add(ctx, int64(rows), otelmetric.WithAttributes(attribute.String("kind", kind)))
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil {
		return nil
	}
	var firstErr error
	if o.tracerProvider != nil {
		if err := o.tracerProvider.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if o.meterProvider != nil {
		if err := o.meterProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
