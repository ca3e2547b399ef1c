// Package observability provides an OpenTelemetry metrics extension over
// the pipeline lifecycle hooks. It records system-wide counters for run,
// stage, and transfer events.
//
// For per-stage tracing and histograms, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/Pratikkale26/Flowrge/ext"
	"github.com/Pratikkale26/Flowrge/id"
	"github.com/Pratikkale26/Flowrge/workflow"
)

// meterName is the instrumentation scope name for lifecycle metrics.
const meterName = "github.com/Pratikkale26/Flowrge/observability"

// Compile-time interface checks.
var (
	_ ext.Extension         = (*MetricsExtension)(nil)
	_ ext.RunStarted        = (*MetricsExtension)(nil)
	_ ext.RunCompleted      = (*MetricsExtension)(nil)
	_ ext.RunFailed         = (*MetricsExtension)(nil)
	_ ext.StageFailed       = (*MetricsExtension)(nil)
	_ ext.TransferConfirmed = (*MetricsExtension)(nil)
	_ ext.TransferFailed    = (*MetricsExtension)(nil)
)

// MetricsExtension records lifecycle counters. Register it on the engine
// to track run starts, completions, failures, terminal stage failures,
// and transfer outcomes.
type MetricsExtension struct {
	runStarted        metric.Int64Counter
	runCompleted      metric.Int64Counter
	runFailed         metric.Int64Counter
	stageFailed       metric.Int64Counter
	transferConfirmed metric.Int64Counter
	transferFailed    metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global OTel
// MeterProvider. Without a configured provider the instruments are
// noops.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter, for injecting a specific MeterProvider in tests.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	// On error the OTel API returns noop instruments, so the extension
	// degrades gracefully.
	m := &MetricsExtension{}
	m.runStarted, _ = meter.Int64Counter("flowrge.run.started",
		metric.WithDescription("Total number of runs that left the pending state"))
	m.runCompleted, _ = meter.Int64Counter("flowrge.run.completed",
		metric.WithDescription("Total number of runs that completed every stage"))
	m.runFailed, _ = meter.Int64Counter("flowrge.run.failed",
		metric.WithDescription("Total number of runs that failed terminally"))
	m.stageFailed, _ = meter.Int64Counter("flowrge.stage.failed",
		metric.WithDescription("Total number of terminal stage failures"))
	m.transferConfirmed, _ = meter.Int64Counter("flowrge.transfer.confirmed",
		metric.WithDescription("Total number of durable transfers confirmed on chain"))
	m.transferFailed, _ = meter.Int64Counter("flowrge.transfer.failed",
		metric.WithDescription("Total number of durable transfers that failed"))
	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnRunStarted implements ext.RunStarted.
func (m *MetricsExtension) OnRunStarted(ctx context.Context, _ *workflow.Run) error {
	m.runStarted.Add(ctx, 1)
	return nil
}

// OnRunCompleted implements ext.RunCompleted.
func (m *MetricsExtension) OnRunCompleted(ctx context.Context, _ *workflow.Run, _ time.Duration) error {
	m.runCompleted.Add(ctx, 1)
	return nil
}

// OnRunFailed implements ext.RunFailed.
func (m *MetricsExtension) OnRunFailed(ctx context.Context, _ *workflow.Run, _ error) error {
	m.runFailed.Add(ctx, 1)
	return nil
}

// OnStageFailed implements ext.StageFailed.
func (m *MetricsExtension) OnStageFailed(ctx context.Context, _ *workflow.Run, _ *workflow.Action, _ error) error {
	m.stageFailed.Add(ctx, 1)
	return nil
}

// OnTransferConfirmed implements ext.TransferConfirmed.
func (m *MetricsExtension) OnTransferConfirmed(ctx context.Context, _ id.RunID, _ id.TxID, _ string) error {
	m.transferConfirmed.Add(ctx, 1)
	return nil
}

// OnTransferFailed implements ext.TransferFailed.
func (m *MetricsExtension) OnTransferFailed(ctx context.Context, _ id.RunID, _ id.TxID, _ error) error {
	m.transferFailed.Add(ctx, 1)
	return nil
}
