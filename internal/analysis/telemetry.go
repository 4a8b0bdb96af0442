package analysis

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "threadlens/analysis"

type telemetry struct {
	tracer   trace.Tracer
	runs     metric.Int64Counter
	duration metric.Float64Histogram
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) *telemetry {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	// Instruments are best-effort; a nil instrument is skipped when recording.
	runs, _ := meter.Int64Counter("threadlens.analysis.runs",
		metric.WithDescription("Analysis runs by outcome"),
	)
	duration, _ := meter.Float64Histogram("threadlens.analysis.duration",
		metric.WithDescription("Time from run start to outcome (ms)"),
		metric.WithUnit("ms"),
	)
	return &telemetry{
		tracer:   tp.Tracer(instrumentationName),
		runs:     runs,
		duration: duration,
	}
}

func (t *telemetry) startRun(ctx context.Context, run *Run) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "analysis.run",
		trace.WithAttributes(
			attribute.String("threadlens.run_id", run.id),
			attribute.String("threadlens.context_id", run.contextID),
		),
	)
}

func (t *telemetry) startStage(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "analysis."+name)
}

func (t *telemetry) record(ctx context.Context, o Outcome, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("outcome", o.Phase.String()),
		attribute.String("code", Code(o.Err)),
	)
	if t.runs != nil {
		t.runs.Add(ctx, 1, attrs)
	}
	if t.duration != nil {
		t.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}
}
