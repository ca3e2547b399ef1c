package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/Pratikkale26/Flowrge/id"
	"github.com/Pratikkale26/Flowrge/workflow"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type runStartedEntry struct {
	name string
	hook RunStarted
}

type stageStartedEntry struct {
	name string
	hook StageStarted
}

type stageCompletedEntry struct {
	name string
	hook StageCompleted
}

type stageFailedEntry struct {
	name string
	hook StageFailed
}

type runCompletedEntry struct {
	name string
	hook RunCompleted
}

type runFailedEntry struct {
	name string
	hook RunFailed
}

type transferConfirmedEntry struct {
	name string
	hook TransferConfirmed
}

type transferFailedEntry struct {
	name string
	hook TransferFailed
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and fans lifecycle events out to
// them. Extensions are type-cached at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	runStarted        []runStartedEntry
	stageStarted      []stageStartedEntry
	stageCompleted    []stageCompletedEntry
	stageFailed       []stageFailedEntry
	runCompleted      []runCompletedEntry
	runFailed         []runFailedEntry
	transferConfirmed []transferConfirmedEntry
	transferFailed    []transferFailedEntry
	shutdown          []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and slots it into the matching hook
// caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(RunStarted); ok {
		r.runStarted = append(r.runStarted, runStartedEntry{name, h})
	}
	if h, ok := e.(StageStarted); ok {
		r.stageStarted = append(r.stageStarted, stageStartedEntry{name, h})
	}
	if h, ok := e.(StageCompleted); ok {
		r.stageCompleted = append(r.stageCompleted, stageCompletedEntry{name, h})
	}
	if h, ok := e.(StageFailed); ok {
		r.stageFailed = append(r.stageFailed, stageFailedEntry{name, h})
	}
	if h, ok := e.(RunCompleted); ok {
		r.runCompleted = append(r.runCompleted, runCompletedEntry{name, h})
	}
	if h, ok := e.(RunFailed); ok {
		r.runFailed = append(r.runFailed, runFailedEntry{name, h})
	}
	if h, ok := e.(TransferConfirmed); ok {
		r.transferConfirmed = append(r.transferConfirmed, transferConfirmedEntry{name, h})
	}
	if h, ok := e.(TransferFailed); ok {
		r.transferFailed = append(r.transferFailed, transferFailedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitRunStarted notifies all extensions that implement RunStarted.
func (r *Registry) EmitRunStarted(ctx context.Context, run *workflow.Run) {
	for _, e := range r.runStarted {
		if err := e.hook.OnRunStarted(ctx, run); err != nil {
			r.logHookError("OnRunStarted", e.name, err)
		}
	}
}

// EmitStageStarted notifies all extensions that implement StageStarted.
func (r *Registry) EmitStageStarted(ctx context.Context, run *workflow.Run, act *workflow.Action) {
	for _, e := range r.stageStarted {
		if err := e.hook.OnStageStarted(ctx, run, act); err != nil {
			r.logHookError("OnStageStarted", e.name, err)
		}
	}
}

// EmitStageCompleted notifies all extensions that implement StageCompleted.
func (r *Registry) EmitStageCompleted(ctx context.Context, run *workflow.Run, act *workflow.Action, elapsed time.Duration) {
	for _, e := range r.stageCompleted {
		if err := e.hook.OnStageCompleted(ctx, run, act, elapsed); err != nil {
			r.logHookError("OnStageCompleted", e.name, err)
		}
	}
}

// EmitStageFailed notifies all extensions that implement StageFailed.
func (r *Registry) EmitStageFailed(ctx context.Context, run *workflow.Run, act *workflow.Action, stageErr error) {
	for _, e := range r.stageFailed {
		if err := e.hook.OnStageFailed(ctx, run, act, stageErr); err != nil {
			r.logHookError("OnStageFailed", e.name, err)
		}
	}
}

// EmitRunCompleted notifies all extensions that implement RunCompleted.
func (r *Registry) EmitRunCompleted(ctx context.Context, run *workflow.Run, elapsed time.Duration) {
	for _, e := range r.runCompleted {
		if err := e.hook.OnRunCompleted(ctx, run, elapsed); err != nil {
			r.logHookError("OnRunCompleted", e.name, err)
		}
	}
}

// EmitRunFailed notifies all extensions that implement RunFailed.
func (r *Registry) EmitRunFailed(ctx context.Context, run *workflow.Run, runErr error) {
	for _, e := range r.runFailed {
		if err := e.hook.OnRunFailed(ctx, run, runErr); err != nil {
			r.logHookError("OnRunFailed", e.name, err)
		}
	}
}

// EmitTransferConfirmed notifies all extensions that implement TransferConfirmed.
func (r *Registry) EmitTransferConfirmed(ctx context.Context, runID id.RunID, txID id.TxID, signature string) {
	for _, e := range r.transferConfirmed {
		if err := e.hook.OnTransferConfirmed(ctx, runID, txID, signature); err != nil {
			r.logHookError("OnTransferConfirmed", e.name, err)
		}
	}
}

// EmitTransferFailed notifies all extensions that implement TransferFailed.
func (r *Registry) EmitTransferFailed(ctx context.Context, runID id.RunID, txID id.TxID, txErr error) {
	for _, e := range r.transferFailed {
		if err := e.hook.OnTransferFailed(ctx, runID, txID, txErr); err != nil {
			r.logHookError("OnTransferFailed", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Hook errors are never propagated, they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
