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

// MetricsRecorder records checkdef metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordCheckExecution records one evaluated check. status is built,
	// cache_hit or failed.
	RecordCheckExecution(ctx context.Context, check, kind, status string, duration time.Duration)

	// RecordCacheLookup records a store lookup for a derivation check.
	RecordCacheLookup(ctx context.Context, check string, hit bool)

	// RecordChecklistRun records a completed checklist run.
	RecordChecklistRun(ctx context.Context, checklist string, success bool, duration time.Duration)
}

type otelMetrics struct {
	checkExecutions  metric.Int64Counter
	checkLatency     metric.Float64Histogram
	checkFailures    metric.Int64Counter
	cacheLookups     metric.Int64Counter
	checklistRuns    metric.Int64Counter
	checklistLatency metric.Float64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("checkdef")
	m := &otelMetrics{}
	var err error

	if m.checkExecutions, err = meter.Int64Counter("checkdef.check.executions",
		metric.WithDescription("Number of evaluated checks"),
	); err != nil {
		return nil, err
	}
	if m.checkLatency, err = meter.Float64Histogram("checkdef.check.latency_ms",
		metric.WithDescription("Check wall time in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.checkFailures, err = meter.Int64Counter("checkdef.check.failures",
		metric.WithDescription("Number of failed checks"),
	); err != nil {
		return nil, err
	}
	if m.cacheLookups, err = meter.Int64Counter("checkdef.cache.lookups",
		metric.WithDescription("Result store lookups by outcome"),
	); err != nil {
		return nil, err
	}
	if m.checklistRuns, err = meter.Int64Counter("checkdef.checklist.runs",
		metric.WithDescription("Number of checklist runs"),
	); err != nil {
		return nil, err
	}
	if m.checklistLatency, err = meter.Float64Histogram("checkdef.checklist.latency_ms",
		metric.WithDescription("Checklist run latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses the global
// OpenTelemetry meter provider, or a no-op recorder if the instruments
// cannot be created. Configure the provider first with otel.SetMeterProvider.
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordCheckExecution(ctx context.Context, check, kind, status string, duration time.Duration) {
	opt := metric.WithAttributes(
		attribute.String("check", check),
		attribute.String("kind", kind),
		attribute.String("status", status),
	)
	m.checkExecutions.Add(ctx, 1, opt)
	m.checkLatency.Record(ctx, ms(duration), opt)
	if status == "failed" {
		m.checkFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("check", check)))
	}
}

func (m *otelMetrics) RecordCacheLookup(ctx context.Context, check string, hit bool) {
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("check", check),
		attribute.Bool("hit", hit),
	))
}

func (m *otelMetrics) RecordChecklistRun(ctx context.Context, checklist string, success bool, duration time.Duration) {
	opt := metric.WithAttributes(
		attribute.String("checklist", checklist),
		attribute.Bool("success", success),
	)
	m.checklistRuns.Add(ctx, 1, opt)
	m.checklistLatency.Record(ctx, ms(duration), opt)
}
