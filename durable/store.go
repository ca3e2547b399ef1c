package durable

import (
	"context"
	"time"

	"github.com/Pratikkale26/Flowrge/id"
)

// LostSubmitterError is the last-error text recorded on submitting
// claims expired by ExpireStaleSubmitting.
const LostSubmitterError = "submitter lost: claim expired"

// Store defines the persistence contract for durable transactions.
//
// ClaimOldestPending is the dedupe point for concurrent submitters: it
// must atomically flip exactly one pending transaction to submitting,
// so a second claim for the same scope finds nothing.
type Store interface {
	// CreateTransaction persists a new pending transaction.
	CreateTransaction(ctx context.Context, tx *Transaction) error

	// GetTransaction retrieves a transaction by ID, or
	// flowrge.ErrTransactionNotFound.
	GetTransaction(ctx context.Context, txID id.TxID) (*Transaction, error)

	// ClaimOldestPending atomically claims the scope's oldest pending
	// transaction, flipping it to submitting. Returns
	// flowrge.ErrTransactionNotFound when the scope has none pending.
	ClaimOldestPending(ctx context.Context, workflowID id.WorkflowID, flowKey string) (*Transaction, error)

	// MarkTransactionConfirmed flips a claimed transaction to confirmed
	// and records its signature.
	MarkTransactionConfirmed(ctx context.Context, txID id.TxID, signature string) error

	// MarkTransactionFailed flips a claimed transaction to failed and
	// records the error.
	MarkTransactionFailed(ctx context.Context, txID id.TxID, lastError string) error

	// ExpireStaleSubmitting fails every submitting transaction whose
	// claim is older than olderThan, recording a lost-submitter error.
	// Returns how many claims were expired.
	ExpireStaleSubmitting(ctx context.Context, olderThan time.Duration) (int, error)
}
