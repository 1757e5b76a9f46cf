package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records board metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordGeneration records a completed generation attempt with its
	// duration and error status.
	RecordGeneration(ctx context.Context, nodeKind string, duration time.Duration, err error)

	// RecordTokens records streamed token characters received for a node.
	RecordTokens(ctx context.Context, nodeKind string, characters int)

	// RecordMutation records a structural board mutation (add, remove,
	// connect, resize).
	RecordMutation(ctx context.Context, op string)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	generations     metric.Int64Counter
	generationTime  metric.Float64Histogram
	generationFails metric.Int64Counter
	tokenChars      metric.Int64Counter
	mutations       metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("board")

	generations, err := meter.Int64Counter("board.generation.attempts",
		metric.WithDescription("Number of artefact generation attempts"),
	)
	if err != nil {
		return nil, err
	}

	generationTime, err := meter.Float64Histogram("board.generation.latency_ms",
		metric.WithDescription("Generation attempt latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	generationFails, err := meter.Int64Counter("board.generation.failures",
		metric.WithDescription("Number of failed generation attempts"),
	)
	if err != nil {
		return nil, err
	}

	tokenChars, err := meter.Int64Counter("board.stream.characters",
		metric.WithDescription("Streamed token characters received"),
	)
	if err != nil {
		return nil, err
	}

	mutations, err := meter.Int64Counter("board.mutations",
		metric.WithDescription("Structural board mutations"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		generations:     generations,
		generationTime:  generationTime,
		generationFails: generationFails,
		tokenChars:      tokenChars,
		mutations:       mutations,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordGeneration records a completed generation attempt.
func (m *otelMetrics) RecordGeneration(ctx context.Context, nodeKind string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("node_kind", nodeKind),
	}

	m.generations.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.generationTime.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.generationFails.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordTokens records streamed characters.
func (m *otelMetrics) RecordTokens(ctx context.Context, nodeKind string, characters int) {
	m.tokenChars.Add(ctx, int64(characters), metric.WithAttributes(
		attribute.String("node_kind", nodeKind),
	))
}

// RecordMutation records a structural mutation.
func (m *otelMetrics) RecordMutation(ctx context.Context, op string) {
	m.mutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
	))
}
