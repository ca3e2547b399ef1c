// Package workflow defines the workflow, action, and run models that the
// pipeline executes, plus their persistence contract.
//
// A Workflow is one trigger plus an ordered list of actions. A Run is one
// firing of the trigger; the executor walks the run through the actions by
// ascending sort order. Workflows referenced by at least one run are treated
// as immutable; runs always read the live workflow row.
package workflow

import (
	"encoding/json"

	flowrge "github.com/Pratikkale26/Flowrge"
	"github.com/Pratikkale26/Flowrge/id"
)

// Workflow is a trigger plus an ordered list of actions.
type Workflow struct {
	flowrge.Entity

	ID      id.WorkflowID `json:"id"`
	Name    string        `json:"name"`
	OwnerID string        `json:"owner_id"`
	// TriggerType is the tag of the trigger that starts this workflow
	// (e.g. "webhook").
	TriggerType string   `json:"trigger_type"`
	Actions     []Action `json:"actions"`
}

// Action is one step of a workflow. Metadata is opaque here; the action
// package parses it into a typed payload by the Type tag.
type Action struct {
	ID         id.ActionID     `json:"id"`
	WorkflowID id.WorkflowID   `json:"workflow_id"`
	Type       string          `json:"type"`
	SortOrder  int             `json:"sort_order"`
	Metadata   json.RawMessage `json:"metadata"`
}

// ActionAt returns the action with the given sort order, or nil if the
// workflow has no action at that position.
func (w *Workflow) ActionAt(sortOrder int) *Action {
	for i := range w.Actions {
		if w.Actions[i].SortOrder == sortOrder {
			return &w.Actions[i]
		}
	}
	return nil
}

// Stages returns the number of stages a run of this workflow visits.
func (w *Workflow) Stages() int { return len(w.Actions) }
