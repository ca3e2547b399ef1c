package nonce

import (
	"context"

	"github.com/Pratikkale26/Flowrge/id"
)

// Store defines the persistence contract for nonce accounts.
//
// The at-most-one-active invariant per (workflow, flow key) scope is
// enforced here, not in the manager: CreateNonce must reject a second
// active account for a scope with flowrge.ErrNonceAlreadyActive so
// concurrent callers resolve to a single winner.
type Store interface {
	// CreateNonce persists a new account. Returns
	// flowrge.ErrNonceAlreadyActive if the scope already has an active
	// account.
	CreateNonce(ctx context.Context, n *Account) error

	// GetNonce retrieves an account by ID, or flowrge.ErrNonceNotFound.
	GetNonce(ctx context.Context, nonceID id.NonceID) (*Account, error)

	// GetActiveNonce returns the scope's active account, or
	// flowrge.ErrNonceNotFound when the scope has none.
	GetActiveNonce(ctx context.Context, workflowID id.WorkflowID, flowKey string) (*Account, error)

	// MarkNonceUsed flips an account from active to used.
	MarkNonceUsed(ctx context.Context, nonceID id.NonceID) error

	// MarkNonceClosed flips an account to closed.
	MarkNonceClosed(ctx context.Context, nonceID id.NonceID) error

	// ListReclaimableNonces returns up to limit used accounts that no
	// pending durable transaction references, oldest first.
	ListReclaimableNonces(ctx context.Context, limit int) ([]*Account, error)
}
