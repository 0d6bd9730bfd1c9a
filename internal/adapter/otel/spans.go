package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "formlink"

// StartRunSpan starts a span covering one generation run.
func StartRunSpan(ctx context.Context, formID, userID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "generation.run",
		trace.WithAttributes(
			attribute.String("form.id", formID),
			attribute.String("user.id", userID),
		),
	)
}

// StartStageSpan starts a span for one orchestrator stage.
func StartStageSpan(ctx context.Context, stage string, iteration int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "generation.stage."+stage,
		trace.WithAttributes(
			attribute.String("stage", stage),
			attribute.Int("iteration", iteration),
		),
	)
}

// StartTaskSpan starts a span for one question task.
func StartTaskSpan(ctx context.Context, taskID, questionType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "generation.task",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("question.type", questionType),
		),
	)
}

// EndSpan records err (if any) and ends span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
