package flowrge

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("flowrge: no store configured")
	ErrStoreClosed = errors.New("flowrge: store closed")

	// Not found errors.
	ErrWorkflowNotFound    = errors.New("flowrge: workflow not found")
	ErrRunNotFound         = errors.New("flowrge: run not found")
	ErrActionNotFound      = errors.New("flowrge: action not found")
	ErrNonceNotFound       = errors.New("flowrge: nonce account not found")
	ErrTransactionNotFound = errors.New("flowrge: durable transaction not found")
	ErrDLQNotFound         = errors.New("flowrge: dlq entry not found")
	ErrConnectionNotFound  = errors.New("flowrge: provider connection not found")

	// Conflict errors.
	ErrRunAlreadyExists   = errors.New("flowrge: run already exists")
	ErrNonceAlreadyActive = errors.New("flowrge: nonce account already active for scope")

	// State errors.
	ErrInvalidState = errors.New("flowrge: invalid state transition")

	// Action errors.
	ErrUnknownActionType = errors.New("flowrge: unknown action type")

	// Chain errors.
	ErrNonceMissingOnChain    = errors.New("flowrge: nonce account missing on-chain")
	ErrTransactionUnconfirmed = errors.New("flowrge: transaction not confirmed")

	// Gateway errors.
	ErrGatewayNoTransaction = errors.New("flowrge: gateway returned no transaction to sign")
	ErrGatewayNoSignature   = errors.New("flowrge: gateway returned no signature")
)
