package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Pratikkale26/Flowrge/action"
)

// tracerName is the instrumentation scope name for pipeline tracing.
const tracerName = "github.com/Pratikkale26/Flowrge"

// Tracing returns middleware that wraps stage execution in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a
// pass-through with zero overhead.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided
// tracer, for tests or when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, inv *action.Invocation, next Handler) error {
		ctx, span := tracer.Start(ctx, "flowrge.stage.execute",
			trace.WithAttributes(
				attribute.String("flowrge.run.id", inv.Run.ID.String()),
				attribute.String("flowrge.workflow.id", inv.Workflow.ID.String()),
				attribute.String("flowrge.action.type", inv.Action.Type),
				attribute.Int("flowrge.stage", inv.Action.SortOrder),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
