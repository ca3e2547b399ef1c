package ext_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Pratikkale26/Flowrge/ext"
	"github.com/Pratikkale26/Flowrge/id"
	"github.com/Pratikkale26/Flowrge/workflow"
)

// recorder implements several hooks and records calls.
type recorder struct {
	runStarted     int
	stageCompleted int
	runFailed      int
	transferOK     int
	hookErr        error
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnRunStarted(context.Context, *workflow.Run) error {
	r.runStarted++
	return r.hookErr
}

func (r *recorder) OnStageCompleted(context.Context, *workflow.Run, *workflow.Action, time.Duration) error {
	r.stageCompleted++
	return nil
}

func (r *recorder) OnRunFailed(context.Context, *workflow.Run, error) error {
	r.runFailed++
	return nil
}

func (r *recorder) OnTransferConfirmed(context.Context, id.RunID, id.TxID, string) error {
	r.transferOK++
	return nil
}

// shutdownOnly implements nothing beyond Shutdown.
type shutdownOnly struct {
	called bool
}

func (s *shutdownOnly) Name() string { return "shutdown-only" }

func (s *shutdownOnly) OnShutdown(context.Context) error {
	s.called = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistryDispatchesToImplementedHooks(t *testing.T) {
	ctx := context.Background()
	reg := ext.NewRegistry(testLogger())
	rec := &recorder{}
	sd := &shutdownOnly{}
	reg.Register(rec)
	reg.Register(sd)

	run := &workflow.Run{ID: id.NewRunID()}
	reg.EmitRunStarted(ctx, run)
	reg.EmitStageCompleted(ctx, run, &workflow.Action{}, time.Second)
	reg.EmitRunFailed(ctx, run, errors.New("boom"))
	reg.EmitTransferConfirmed(ctx, run.ID, id.NewTxID(), "sig")
	reg.EmitShutdown(ctx)

	if rec.runStarted != 1 || rec.stageCompleted != 1 || rec.runFailed != 1 || rec.transferOK != 1 {
		t.Fatalf("recorder counts = %+v", rec)
	}
	if !sd.called {
		t.Fatal("shutdown hook not called")
	}
}

func TestRegistrySkipsUnimplementedHooks(t *testing.T) {
	ctx := context.Background()
	reg := ext.NewRegistry(testLogger())
	sd := &shutdownOnly{}
	reg.Register(sd)

	// Must not panic even though no extension implements these.
	reg.EmitRunStarted(ctx, &workflow.Run{})
	reg.EmitStageFailed(ctx, &workflow.Run{}, &workflow.Action{}, errors.New("x"))
	reg.EmitTransferFailed(ctx, id.NewRunID(), id.NewTxID(), errors.New("y"))
}

func TestRegistryHookErrorsDoNotPropagate(t *testing.T) {
	ctx := context.Background()
	reg := ext.NewRegistry(testLogger())
	rec := &recorder{hookErr: errors.New("hook broke")}
	reg.Register(rec)

	// Emit must swallow the error and keep counting.
	reg.EmitRunStarted(ctx, &workflow.Run{})
	reg.EmitRunStarted(ctx, &workflow.Run{})
	if rec.runStarted != 2 {
		t.Fatalf("runStarted = %d, want 2", rec.runStarted)
	}
}
