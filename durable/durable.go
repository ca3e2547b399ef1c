// Package durable persists pre-signed nonce-backed transactions and
// submits them when a run's transfer stage executes. A transaction is
// built and signed long before it is broadcast; the stored nonce keeps
// the signature valid until then.
package durable

import (
	"time"

	flowrge "github.com/Pratikkale26/Flowrge"
	"github.com/Pratikkale26/Flowrge/id"
)

// State is the lifecycle of a durable transaction.
type State string

const (
	// StatePending means the signed transaction waits for submission.
	StatePending State = "pending"

	// StateSubmitting means a submitter claimed the transaction and is
	// broadcasting it. The claim dedupes concurrent submitters.
	StateSubmitting State = "submitting"

	// StateConfirmed means the transaction reached confirmed commitment.
	StateConfirmed State = "confirmed"

	// StateFailed means broadcast or confirmation failed. Terminal; the
	// nonce may already be consumed, so the transaction is never retried.
	StateFailed State = "failed"
)

// Transaction is a fully signed durable-nonce transaction awaiting
// submission.
type Transaction struct {
	flowrge.Entity

	ID         id.TxID       `json:"id"`
	WorkflowID id.WorkflowID `json:"workflow_id"`

	// FlowKey scopes the transaction to one transfer action within the
	// workflow, matching the nonce account scope.
	FlowKey string `json:"flow_key"`

	// NonceID is the nonce account backing the signature.
	NonceID id.NonceID `json:"nonce_id"`

	// Wire is the fully signed transaction in wire form.
	Wire []byte `json:"wire"`

	State State `json:"state"`

	// Signature is set once the transaction is broadcast.
	Signature string `json:"signature,omitempty"`

	// LastError records why a failed transaction failed.
	LastError string `json:"last_error,omitempty"`

	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// NewTransaction returns a pending transaction for the given scope.
func NewTransaction(workflowID id.WorkflowID, flowKey string, nonceID id.NonceID, wire []byte) *Transaction {
	return &Transaction{
		Entity:     flowrge.NewEntity(),
		ID:         id.NewTxID(),
		WorkflowID: workflowID,
		FlowKey:    flowKey,
		NonceID:    nonceID,
		Wire:       wire,
		State:      StatePending,
	}
}

// Terminal reports whether the transaction reached a final state.
func (t *Transaction) Terminal() bool {
	return t.State == StateConfirmed || t.State == StateFailed
}
