package workflow

import (
	"context"

	"github.com/Pratikkale26/Flowrge/id"
)

// ListOpts controls pagination and filtering for run list queries.
type ListOpts struct {
	// Limit is the maximum number of runs to return. Zero means no limit.
	Limit int
	// Offset is the number of runs to skip.
	Offset int
	// State filters by run state. Empty means all states.
	State RunState
}

// Store defines the persistence contract for workflows and runs.
type Store interface {
	// CreateWorkflow persists a workflow together with its actions.
	CreateWorkflow(ctx context.Context, wf *Workflow) error

	// GetWorkflow retrieves a workflow by ID, actions included and sorted
	// by ascending sort order.
	GetWorkflow(ctx context.Context, workflowID id.WorkflowID) (*Workflow, error)

	// CreateRun persists a new run in pending state.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, runID id.RunID) (*Run, error)

	// UpdateRun persists changes to an existing run.
	UpdateRun(ctx context.Context, run *Run) error

	// ListRuns returns runs for a workflow matching the given options,
	// newest first.
	ListRuns(ctx context.Context, workflowID id.WorkflowID, opts ListOpts) ([]*Run, error)
}
