package workflow

import (
	"encoding/json"
	"time"

	flowrge "github.com/Pratikkale26/Flowrge"
	"github.com/Pratikkale26/Flowrge/id"
)

// RunState represents the lifecycle state of a run.
type RunState string

const (
	// RunStatePending means the run is recorded but no stage has executed.
	RunStatePending RunState = "pending"
	// RunStateRunning means at least one stage has started.
	RunStateRunning RunState = "running"
	// RunStateSucceeded means every stage completed.
	RunStateSucceeded RunState = "succeeded"
	// RunStateFailed means a stage failed terminally and the run halted.
	RunStateFailed RunState = "failed"
)

// Run represents a single firing of a workflow's trigger.
type Run struct {
	flowrge.Entity

	ID         id.RunID      `json:"id"`
	WorkflowID id.WorkflowID `json:"workflow_id"`
	// Payload is the raw trigger payload captured at ingestion time.
	Payload json.RawMessage `json:"payload,omitempty"`
	State   RunState        `json:"state"`
	// Stage is the index of the stage currently or most recently executed.
	// Meaningful only in the running and failed states.
	Stage       int        `json:"stage"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewRun creates a pending run for the given workflow.
func NewRun(workflowID id.WorkflowID, payload json.RawMessage) *Run {
	return &Run{
		Entity:     flowrge.NewEntity(),
		ID:         id.NewRunID(),
		WorkflowID: workflowID,
		Payload:    payload,
		State:      RunStatePending,
	}
}

// Advance moves the run into the running state at the given stage.
func (r *Run) Advance(stage int) {
	if r.State == RunStatePending {
		now := time.Now().UTC()
		r.StartedAt = &now
	}
	r.State = RunStateRunning
	r.Stage = stage
	r.Touch()
}

// Succeed marks the run as having completed every stage.
func (r *Run) Succeed() {
	now := time.Now().UTC()
	r.State = RunStateSucceeded
	r.CompletedAt = &now
	r.Touch()
}

// Fail marks the run as terminally failed at the given stage.
func (r *Run) Fail(stage int, reason string) {
	now := time.Now().UTC()
	r.State = RunStateFailed
	r.Stage = stage
	r.Error = reason
	r.CompletedAt = &now
	r.Touch()
}

// Terminal reports whether the run is in a terminal state.
func (r *Run) Terminal() bool {
	return r.State == RunStateSucceeded || r.State == RunStateFailed
}
