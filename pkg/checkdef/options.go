package checkdef

import (
	"log/slog"

	"github.com/randalmurphal/checkdef/pkg/checkdef/observability"
)

// runConfig holds configuration for one checklist run.
type runConfig struct {
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
	runID    string
	reporter *Reporter
}

func defaultRunConfig() runConfig {
	return runConfig{
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
}

// RunOption configures a checklist run.
type RunOption func(*runConfig)

// WithLogger sets the structured logger. Without it the run logs nothing.
func WithLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) { c.logger = logger }
}

// WithMetrics enables OpenTelemetry metrics through the global meter provider.
func WithMetrics(enabled bool) RunOption {
	return func(c *runConfig) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithTracing enables OpenTelemetry spans through the global tracer provider.
//
// Example:
//
//	otel.SetTracerProvider(tp)
//	run, err := runner.RunChecklist(ctx, "foo", checkdef.WithTracing(true))
func WithTracing(enabled bool) RunOption {
	return func(c *runConfig) {
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// WithRunID sets the run identifier recorded with new store entries.
// Default: a random UUID.
func WithRunID(id string) RunOption {
	return func(c *runConfig) { c.runID = id }
}

// WithReporter streams each result to r as it completes.
func WithReporter(r *Reporter) RunOption {
	return func(c *runConfig) { c.reporter = r }
}
