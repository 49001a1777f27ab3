package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type Observability struct {
	Tracer oteltrace.Tracer
	Meter  metric.Meter

	traceProvider    *sdktrace.TracerProvider
	RunCounter       metric.Int64Counter
	CheckDuration    metric.Int64Histogram
	GenerateCounter  metric.Int64Counter
	GenerateDuration metric.Int64Histogram
	Rejected         metric.Int64Counter
}

func SetupObservability(ctx context.Context, cfg ObservabilityConfig) (*Observability, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "harness-api"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}
	sampler := sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	if cfg.OTLPEndpoint != "" {
		exporter, exportErr := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if exportErr != nil {
			return nil, fmt.Errorf("create otlp trace exporter: %w", exportErr)
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler),
		)
	} else {
		slog.Info("otel trace exporter not configured; using local tracer provider")
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	meter := otel.Meter(serviceName)
	tracer := otel.Tracer(serviceName)
	runCounter, _ := meter.Int64Counter("harness_run_total")
	checkDuration, _ := meter.Int64Histogram("harness_check_duration_ms")
	generateCounter, _ := meter.Int64Counter("tts_generate_total")
	generateDuration, _ := meter.Int64Histogram("tts_generate_duration_ms")
	rejected, _ := meter.Int64Counter("harness_reject_total")
	return &Observability{
		Tracer:           tracer,
		Meter:            meter,
		traceProvider:    tp,
		RunCounter:       runCounter,
		CheckDuration:    checkDuration,
		GenerateCounter:  generateCounter,
		GenerateDuration: generateDuration,
		Rejected:         rejected,
	}, nil
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.traceProvider == nil {
		return nil
	}
	return o.traceProvider.Shutdown(ctx)
}

func (o *Observability) MarkRun(ctx context.Context, status string) {
	if o == nil {
		return
	}
	o.RunCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}

func (o *Observability) MarkCheck(ctx context.Context, check string, succeeded bool, durationMS int64) {
	if o == nil {
		return
	}
	o.CheckDuration.Record(ctx, durationMS, metric.WithAttributes(
		attribute.String("check", check),
		attribute.Bool("succeeded", succeeded),
	))
}

func (o *Observability) MarkGenerate(ctx context.Context, status string, durationMS int64) {
	if o == nil {
		return
	}
	o.GenerateCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
	if durationMS >= 0 {
		o.GenerateDuration.Record(ctx, durationMS)
	}
}

func (o *Observability) MarkRejected(ctx context.Context, reason string) {
	if o == nil {
		return
	}
	o.Rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}
