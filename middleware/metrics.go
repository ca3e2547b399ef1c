package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Pratikkale26/Flowrge/action"
)

// meterName is the instrumentation scope name for pipeline metrics.
const meterName = "github.com/Pratikkale26/Flowrge"

// Metrics returns middleware that records per-stage execution metrics
// using the global OTel MeterProvider. If no MeterProvider is
// configured, noop instruments are used and this middleware becomes a
// pass-through.
//
// Instruments:
//   - flowrge.stage.duration (Float64Histogram): execution time in
//     seconds, with attributes: action_type, status ("ok" or "error")
//   - flowrge.stage.executions (Int64Counter): total executions, with
//     attributes: action_type, status ("ok" or "error")
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter,
// for injecting a specific MeterProvider in tests.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Instruments are created once at construction time. On error the
	// OTel API returns noop instruments, so the middleware degrades
	// gracefully.
	duration, _ := meter.Float64Histogram(
		"flowrge.stage.duration",
		metric.WithDescription("Duration of stage execution in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"flowrge.stage.executions",
		metric.WithDescription("Total number of stage executions"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, inv *action.Invocation, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("action_type", inv.Action.Type),
			attribute.String("status", status),
		)

		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return err
	}
}
