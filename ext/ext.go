// Package ext defines the extension system for Flowrge.
//
// Extensions are notified of pipeline lifecycle events and can react to
// them. Each hook is a separate interface so extensions opt in only to
// the events they care about. Hook errors are logged and never block
// the pipeline.
package ext

import (
	"context"
	"time"

	"github.com/Pratikkale26/Flowrge/id"
	"github.com/Pratikkale26/Flowrge/workflow"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// RunStarted is called when a run leaves the pending state.
type RunStarted interface {
	OnRunStarted(ctx context.Context, run *workflow.Run) error
}

// StageStarted is called when the executor begins a stage.
type StageStarted interface {
	OnStageStarted(ctx context.Context, run *workflow.Run, act *workflow.Action) error
}

// StageCompleted is called after a stage finishes successfully.
type StageCompleted interface {
	OnStageCompleted(ctx context.Context, run *workflow.Run, act *workflow.Action, elapsed time.Duration) error
}

// StageFailed is called when a stage fails terminally.
type StageFailed interface {
	OnStageFailed(ctx context.Context, run *workflow.Run, act *workflow.Action, err error) error
}

// RunCompleted is called after every stage of a run has succeeded.
type RunCompleted interface {
	OnRunCompleted(ctx context.Context, run *workflow.Run, elapsed time.Duration) error
}

// RunFailed is called when a run fails terminally.
type RunFailed interface {
	OnRunFailed(ctx context.Context, run *workflow.Run, err error) error
}

// TransferConfirmed is called once a durable transaction reaches
// confirmed commitment on chain.
type TransferConfirmed interface {
	OnTransferConfirmed(ctx context.Context, runID id.RunID, txID id.TxID, signature string) error
}

// TransferFailed is called when a submitted durable transaction fails
// or cannot be confirmed.
type TransferFailed interface {
	OnTransferFailed(ctx context.Context, runID id.RunID, txID id.TxID, err error) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
