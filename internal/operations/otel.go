package operations

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	apperrors "tschart/internal/errors"
	"tschart/internal/infrastructure"
)

const (
	TracerName = "tschart.pipeline"
)

// OperationTracer provides OpenTelemetry instrumentation for pipeline runs
type OperationTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.PipelineMetrics
}

// NewOperationTracer creates a tracer recording on meter. A nil meter uses
// the global meter provider, which is a noop unless telemetry is enabled.
func NewOperationTracer(meter metric.Meter) (*OperationTracer, error) {
	if meter == nil {
		meter = otel.Meter(infrastructure.MeterName)
	}
	metrics, err := infrastructure.CreatePipelineMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	return &OperationTracer{
		tracer:  otel.Tracer(TracerName),
		metrics: metrics,
	}, nil
}

// TraceOperationExecution creates a span for the entire run
func (pt *OperationTracer) TraceOperationExecution(ctx context.Context, req Request) (context.Context, trace.Span) {
	ctx, span := pt.tracer.Start(ctx, "pipeline.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("pipeline.id", req.ID),
			attribute.String("pipeline.input_path", req.InputPath),
			attribute.String("pipeline.output_dir", req.OutputDir),
			attribute.String("pipeline.format", string(req.Format)),
			attribute.IntSlice("pipeline.windows", req.Windows),
			attribute.IntSlice("pipeline.spans", req.Spans),
		),
	)
	return ctx, span
}

// TraceStageExecution creates a span for one step
func (pt *OperationTracer) TraceStageExecution(ctx context.Context, operationID, stepID string) (context.Context, trace.Span) {
	return pt.tracer.Start(ctx, "pipeline.step."+stepID,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("pipeline.id", operationID),
			attribute.String("step.id", stepID),
		),
	)
}

// RecordOperationCompletion records run metrics and closes out the span status
func (pt *OperationTracer) RecordOperationCompletion(ctx context.Context, span trace.Span, state *OperationState) {
	status := string(state.Status)
	duration := state.Duration()

	span.SetAttributes(
		attribute.String("pipeline.status", status),
		attribute.Float64("pipeline.duration_seconds", duration.Seconds()),
	)

	attrs := metric.WithAttributes(attribute.String("status", status))
	pt.metrics.RunsTotal.Add(ctx, 1, attrs)
	pt.metrics.RunDuration.Record(ctx, duration.Seconds(), attrs)

	infrastructure.AddSpanEvent(ctx, "pipeline.completed", map[string]interface{}{
		"pipeline_id": state.ID,
		"status":      status,
		"duration":    duration.Seconds(),
	})

	if state.Error != nil {
		kind := string(apperrors.KindOf(state.Error))
		pt.metrics.Errors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
		span.RecordError(state.Error)
		span.SetStatus(codes.Error, state.Error.Error())
		return
	}
	span.SetStatus(codes.Ok, "pipeline completed successfully")
}

// RecordStageCompletion records step metrics from the step's final state
func (pt *OperationTracer) RecordStageCompletion(ctx context.Context, span trace.Span, step *StepState) {
	status := string(step.Status)
	duration := step.Duration()

	span.SetAttributes(
		attribute.String("step.status", status),
		attribute.Float64("step.duration_seconds", duration.Seconds()),
	)

	attrs := metric.WithAttributes(
		attribute.String("step_id", step.ID),
		attribute.String("status", status),
	)
	pt.metrics.StepsTotal.Add(ctx, 1, attrs)
	if step.StartTime != nil {
		pt.metrics.StepDuration.Record(ctx, duration.Seconds(), attrs)
	}

	stepAttr := metric.WithAttributes(attribute.String("step_id", step.ID))
	if n, ok := metadataInt(step, metaRowsLoaded); ok {
		pt.metrics.RowsLoaded.Add(ctx, n, stepAttr)
	}
	if n, ok := metadataInt(step, metaColumnsComputed); ok {
		pt.metrics.ColumnsComputed.Add(ctx, n, stepAttr)
	}
	if n, ok := metadataInt(step, metaChartsWritten); ok {
		pt.metrics.ChartsWritten.Add(ctx, n, stepAttr)
	}

	switch step.Status {
	case StepStatusFailed:
		if step.Error != nil {
			span.RecordError(step.Error)
		}
		span.SetStatus(codes.Error, step.ErrorMessage)
	case StepStatusSkipped:
		span.AddEvent("step.skipped", trace.WithAttributes(attribute.String("reason", step.Message)))
		span.SetStatus(codes.Ok, "skipped")
	default:
		span.SetStatus(codes.Ok, "step completed successfully")
	}
}

func metadataInt(step *StepState, key string) (int64, bool) {
	v, ok := step.Metadata[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

