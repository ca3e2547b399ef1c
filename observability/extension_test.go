package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Pratikkale26/Flowrge/id"
	"github.com/Pratikkale26/Flowrge/observability"
	"github.com/Pratikkale26/Flowrge/workflow"
)

func newTestExtension(t *testing.T) (*observability.MetricsExtension, func(name string) int64) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	e := observability.NewMetricsExtensionWithMeter(provider.Meter("test"))

	counterValue := func(name string) int64 {
		var rm metricdata.ResourceMetrics
		if err := reader.Collect(context.Background(), &rm); err != nil {
			t.Fatalf("Collect: %v", err)
		}
		for _, scope := range rm.ScopeMetrics {
			for _, m := range scope.Metrics {
				if m.Name != name {
					continue
				}
				sum, ok := m.Data.(metricdata.Sum[int64])
				if !ok {
					t.Fatalf("metric %s is not an int64 sum", name)
				}
				var total int64
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
				return total
			}
		}
		return 0
	}
	return e, counterValue
}

func newTestRun() *workflow.Run {
	return &workflow.Run{ID: id.NewRunID(), WorkflowID: id.NewWorkflowID()}
}

func TestName(t *testing.T) {
	e, _ := newTestExtension(t)
	if e.Name() != "observability-metrics" {
		t.Errorf("Name = %q, want %q", e.Name(), "observability-metrics")
	}
}

func TestLifecycleCounters(t *testing.T) {
	e, value := newTestExtension(t)
	ctx := context.Background()
	run := newTestRun()
	act := &workflow.Action{ID: id.NewActionID(), Type: "email"}

	tests := []struct {
		metric string
		emit   func() error
	}{
		{"flowrge.run.started", func() error { return e.OnRunStarted(ctx, run) }},
		{"flowrge.run.completed", func() error { return e.OnRunCompleted(ctx, run, time.Second) }},
		{"flowrge.run.failed", func() error { return e.OnRunFailed(ctx, run, errors.New("boom")) }},
		{"flowrge.stage.failed", func() error { return e.OnStageFailed(ctx, run, act, errors.New("boom")) }},
		{"flowrge.transfer.confirmed", func() error { return e.OnTransferConfirmed(ctx, run.ID, id.NewTxID(), "sig") }},
		{"flowrge.transfer.failed", func() error { return e.OnTransferFailed(ctx, run.ID, id.NewTxID(), errors.New("boom")) }},
	}

	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			if err := tt.emit(); err != nil {
				t.Fatalf("hook returned error: %v", err)
			}
			if got := value(tt.metric); got != 1 {
				t.Errorf("%s = %d, want 1", tt.metric, got)
			}
		})
	}
}
