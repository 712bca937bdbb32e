package batch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricNoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"fanout/pkg/request"
)

const (
	instrumentationName = "fanout/pkg/batch"
	batchSpanName       = "fanout.batch"
	requestSpanName     = "fanout.batch.request"
	meterPrefix         = "fanout.batch."
)

type telemetry struct {
	tracer   trace.Tracer
	inFlight metric.Int64UpDownCounter
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) *telemetry {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	if mp == nil {
		mp = metricNoop.NewMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	return &telemetry{
		tracer: tp.Tracer(instrumentationName),
		inFlight: mustInstrument(meter.Int64UpDownCounter(
			meterPrefix+"request.in_flight",
			metric.WithDescription("Batch requests in their network phase."),
		)),
		requests: mustInstrument(meter.Int64Counter(
			meterPrefix+"request.count",
			metric.WithDescription("Finished batch requests by outcome."),
		)),
		duration: mustInstrument(meter.Float64Histogram(
			meterPrefix+"request.duration",
			metric.WithDescription("Batch request duration."),
			metric.WithUnit("ms"),
		)),
	}
}

func (t *telemetry) startBatch(ctx context.Context, size, requests int) (context.Context, trace.Span) {
	return t.tracer.Start(
		ctx,
		batchSpanName,
		trace.WithAttributes(
			attribute.Int("batch.size", size),
			attribute.Int("batch.requests_count", requests),
		),
	)
}

// startRequest starts the request span and in-flight metric.
// The returned function must be called once with the outcome.
func (t *telemetry) startRequest(ctx context.Context, req *request.Request) (context.Context, func(statusCode int, err error)) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", req.Method().String()),
	}
	if p := req.Proxy(); p != nil {
		attrs = append(attrs, attribute.String("proxy.scheme", p.Scheme()))
	}
	ctx, span := t.tracer.Start(
		ctx,
		requestSpanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
		trace.WithAttributes(attribute.String("http.url", req.URL())),
	)
	startTime := time.Now()
	t.inFlight.Add(ctx, 1, metric.WithAttributes(attrs...))

	return ctx, func(statusCode int, err error) {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		meterAttrs := append(attrs, attribute.String("outcome", outcome))
		t.inFlight.Add(ctx, -1, metric.WithAttributes(attrs...))
		t.requests.Add(ctx, 1, metric.WithAttributes(meterAttrs...))
		t.duration.Record(ctx, float64(time.Since(startTime))/float64(time.Millisecond), metric.WithAttributes(meterAttrs...))

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("http.status_code", statusCode))
		}
		span.End()
	}
}

func mustInstrument[T any](instrument T, err error) T {
	if err != nil {
		panic(err)
	}
	return instrument
}
