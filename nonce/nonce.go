// Package nonce manages the durable nonce accounts that back
// transaction pre-signing. Each (workflow, flow key) scope holds at
// most one active account; used accounts are reclaimed on a schedule
// once no pending durable transaction references them.
package nonce

import (
	flowrge "github.com/Pratikkale26/Flowrge"
	"github.com/Pratikkale26/Flowrge/id"
)

// Status is the lifecycle state of a nonce account.
type Status string

const (
	// StatusActive means the account backs the scope's next durable
	// transaction.
	StatusActive Status = "active"

	// StatusUsed means a durable transaction consumed the account's
	// nonce. The account waits for reclamation.
	StatusUsed Status = "used"

	// StatusClosed means the account's lamports were withdrawn and the
	// record is retired.
	StatusClosed Status = "closed"
)

// Account is a tracked on-chain nonce account.
type Account struct {
	flowrge.Entity

	ID         id.NonceID    `json:"id"`
	WorkflowID id.WorkflowID `json:"workflow_id"`

	// FlowKey distinguishes multiple transfer actions within one
	// workflow. Scope uniqueness is (WorkflowID, FlowKey).
	FlowKey string `json:"flow_key"`

	// PublicKey is the account's base58 address.
	PublicKey string `json:"public_key"`

	Status Status `json:"status"`
}

// NewAccount returns an active account record for the given scope.
func NewAccount(workflowID id.WorkflowID, flowKey, publicKey string) *Account {
	return &Account{
		Entity:     flowrge.NewEntity(),
		ID:         id.NewNonceID(),
		WorkflowID: workflowID,
		FlowKey:    flowKey,
		PublicKey:  publicKey,
		Status:     StatusActive,
	}
}
