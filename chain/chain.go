// Package chain is the pipeline's Solana boundary: a narrow RPC client
// interface plus durable-nonce transaction assembly.
//
// Components depend on the Client interface, never on the RPC
// implementation, so tests substitute an in-memory chain.
package chain

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
)

// NonceAccountSize is the byte size of a system-program nonce account.
const NonceAccountSize = 80

// Client is the subset of chain RPC the pipeline needs.
type Client interface {
	// NonceValue reads the current nonce stored in a nonce account.
	// Returns flowrge.ErrNonceMissingOnChain if the account does not
	// exist (yet) at the queried commitment.
	NonceValue(ctx context.Context, account solana.PublicKey) (solana.Hash, error)

	// Balance returns the account's lamport balance. A missing account
	// reports zero.
	Balance(ctx context.Context, account solana.PublicKey) (uint64, error)

	// RentExemptBalance returns the minimum lamports an account of the
	// given size needs to be rent exempt.
	RentExemptBalance(ctx context.Context, dataLen uint64) (uint64, error)

	// LatestBlockhash returns a recent blockhash for short-lived
	// transactions (nonce creation, withdrawals).
	LatestBlockhash(ctx context.Context) (solana.Hash, error)

	// SendTransaction broadcasts a fully signed wire-encoded transaction
	// and returns its signature.
	SendTransaction(ctx context.Context, wire []byte) (solana.Signature, error)

	// ConfirmTransaction blocks until the signature reaches confirmed
	// commitment or the timeout elapses. An on-chain execution error or a
	// timeout returns flowrge.ErrTransactionUnconfirmed (wrapped).
	ConfirmTransaction(ctx context.Context, sig solana.Signature, timeout time.Duration) error
}
