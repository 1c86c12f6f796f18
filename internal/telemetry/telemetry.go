// Package telemetry wires a minimal OpenTelemetry SDK into the batch
// scheduler: a "batch.poll" span around each Poller round and a counter +
// histogram recording dispatch outcomes and batch sizes, per SPEC_FULL.md
// §2.3's ambient-stack expansion of the distilled spec.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/webitel/fsmrun"

// Provider bundles the tracer/meter this package hands to the batch system
// and the SDK providers needed to flush them on shutdown.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	tracer trace.Tracer

	batchSize  metric.Int64Histogram
	dispatched metric.Int64Counter
}

// New constructs SDK providers with no exporter attached by default. A
// caller that wants data to leave the process passes an exporter through
// WithTracerProviderOptions (e.g. sdktrace.WithBatcher) or
// WithMeterProviderOptions (e.g. sdkmetric.WithReader); with none
// registered the instruments are still safe to call, they simply have
// nowhere to send data.
func New(opts ...Option) (*Provider, error) {
	cfg := options{}
	for _, opt := range opts {
		opt(&cfg)
	}

	tp := sdktrace.NewTracerProvider(cfg.traceOpts...)
	mp := sdkmetric.NewMeterProvider(cfg.meterOpts...)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	meter := mp.Meter(instrumentationName)

	batchSize, err := meter.Int64Histogram(
		"fsmrun.batch.size",
		metric.WithDescription("number of FSMs driven in one poll round"),
	)
	if err != nil {
		return nil, err
	}

	dispatched, err := meter.Int64Counter(
		"fsmrun.batch.dispatched",
		metric.WithDescription("FSMs per poll round, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	return &Provider{
		tracerProvider: tp,
		meterProvider:  mp,
		tracer:         tp.Tracer(instrumentationName),
		batchSize:      batchSize,
		dispatched:     dispatched,
	}, nil
}

// StartPollSpan opens the "batch.poll" span a Poller wraps each pollRound
// call in, tagged with the worker's tag and priority.
func (p *Provider) StartPollSpan(ctx context.Context, workerTag string, priority string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "batch.poll",
		trace.WithAttributes(
			attribute.String("worker.tag", workerTag),
			attribute.String("worker.priority", priority),
		),
	)
}

// RecordBatch adds size to the dispatched counter under the given outcome
// ("round" for the round's size, or "released", "removed", "rescheduled"),
// so a dashboard can break down throughput by what happened to each FSM.
// Only "round" calls also record size in the batch-size histogram.
func (p *Provider) RecordBatch(ctx context.Context, size int, outcome string) {
	if outcome == "round" {
		p.batchSize.Record(ctx, int64(size))
	}
	p.dispatched.Add(ctx, int64(size), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Shutdown flushes and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		return err
	}
	return p.meterProvider.Shutdown(ctx)
}

// Option configures the SDK providers New builds.
type Option func(*options)

type options struct {
	traceOpts []sdktrace.TracerProviderOption
	meterOpts []sdkmetric.Option
}

// WithTracerProviderOptions passes through raw SDK tracer options (e.g. a
// span exporter batcher) to the constructed TracerProvider.
func WithTracerProviderOptions(opts ...sdktrace.TracerProviderOption) Option {
	return func(o *options) { o.traceOpts = append(o.traceOpts, opts...) }
}

// WithMeterProviderOptions passes through raw SDK meter options (e.g. a
// periodic reader) to the constructed MeterProvider.
func WithMeterProviderOptions(opts ...sdkmetric.Option) Option {
	return func(o *options) { o.meterOpts = append(o.meterOpts, opts...) }
}
