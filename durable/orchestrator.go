package durable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	flowrge "github.com/Pratikkale26/Flowrge"
	"github.com/Pratikkale26/Flowrge/backoff"
	"github.com/Pratikkale26/Flowrge/chain"
	"github.com/Pratikkale26/Flowrge/ext"
	"github.com/Pratikkale26/Flowrge/id"
	"github.com/Pratikkale26/Flowrge/nonce"
)

// PreparedTransaction is the output of Build: a partially signed
// transaction waiting for the payer's signature.
type PreparedTransaction struct {
	NonceID      id.NonceID
	NonceAccount string

	// Wire is the partially signed transaction. The payer's signature
	// slot is empty.
	Wire []byte
}

// Orchestrator builds, persists, and submits durable transactions.
type Orchestrator struct {
	store    Store
	nonces   *nonce.Manager
	client   chain.Client
	registry *ext.Registry
	logger   *slog.Logger

	authority solana.PrivateKey

	feeAddress solana.PublicKey

	readAttempts   int
	readPause      time.Duration
	confirmTimeout time.Duration
	submitLease    time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPlatformFeeAddress sets the address platform fees are paid to.
// The fee amount is per build: callers pass it to Build.
func WithPlatformFeeAddress(address solana.PublicKey) Option {
	return func(o *Orchestrator) { o.feeAddress = address }
}

// WithSubmitLease overrides how long a submitting claim may stay open
// before ExpireStaleClaims presumes its submitter crashed. Defaults to
// 5 minutes, comfortably past the confirm timeout.
func WithSubmitLease(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.submitLease = d
		}
	}
}

// WithNonceReadRetry overrides the nonce read retry policy. Defaults to
// 5 attempts 200ms apart, covering a nonce account whose creation is
// still propagating.
func WithNonceReadRetry(attempts int, pause time.Duration) Option {
	return func(o *Orchestrator) {
		if attempts > 0 {
			o.readAttempts = attempts
		}
		if pause > 0 {
			o.readPause = pause
		}
	}
}

// WithConfirmTimeout overrides how long Submit waits for confirmation.
// Defaults to 60s.
func WithConfirmTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.confirmTimeout = d
		}
	}
}

// WithRegistry sets the extension registry for transfer lifecycle
// events.
func WithRegistry(registry *ext.Registry) Option {
	return func(o *Orchestrator) { o.registry = registry }
}

// WithLogger sets the orchestrator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// NewOrchestrator creates a durable transaction orchestrator. The
// authority is the nonce authority that co-signs every transaction.
func NewOrchestrator(store Store, nonces *nonce.Manager, client chain.Client, authority solana.PrivateKey, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:          store,
		nonces:         nonces,
		client:         client,
		authority:      authority,
		logger:         slog.Default(),
		readAttempts:   5,
		readPause:      200 * time.Millisecond,
		confirmTimeout: 60 * time.Second,
		submitLease:    5 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Build prepares a partially signed durable transaction for the scope:
// it ensures the scope's nonce account exists, reads the nonce value
// (retrying while a fresh account propagates), and assembles an advance
// instruction followed by the transfers, plus a platform fee transfer
// of feeLamports when non-zero. The payer funds fees and sources every
// transfer; their signature slot is left empty.
//
// An empty transfer list is a no-op: Build returns (nil, nil) and has
// no side effects.
func (o *Orchestrator) Build(ctx context.Context, workflowID id.WorkflowID, flowKey string, payer solana.PublicKey, transfers []chain.Transfer, feeLamports uint64) (*PreparedTransaction, error) {
	if len(transfers) == 0 {
		return nil, nil
	}
	if feeLamports > 0 && o.feeAddress.IsZero() {
		return nil, fmt.Errorf("flowrge/durable: platform fee requested without a fee address")
	}

	account, err := o.nonces.EnsureActive(ctx, workflowID, flowKey)
	if err != nil {
		return nil, err
	}
	noncePub, err := solana.PublicKeyFromBase58(account.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("flowrge/durable: bad nonce public key %q: %w", account.PublicKey, err)
	}

	var nonceValue solana.Hash
	err = backoff.Retry(ctx, o.readAttempts, backoff.NewConstant(o.readPause), func(ctx context.Context) error {
		var readErr error
		nonceValue, readErr = o.client.NonceValue(ctx, noncePub)
		return readErr
	})
	if err != nil {
		return nil, fmt.Errorf("flowrge/durable: read nonce value after %d attempts: %w", o.readAttempts, err)
	}

	all := transfers
	if feeLamports > 0 {
		all = append(append([]chain.Transfer(nil), transfers...), chain.Transfer{
			To:       o.feeAddress,
			Lamports: feeLamports,
		})
	}

	tx, err := chain.BuildDurableTransfer(chain.DurableParams{
		Payer:          payer,
		NonceAccount:   noncePub,
		NonceAuthority: o.authority,
		NonceValue:     nonceValue,
		Transfers:      all,
	})
	if err != nil {
		return nil, err
	}
	wire, err := chain.EncodeTransaction(tx)
	if err != nil {
		return nil, err
	}

	return &PreparedTransaction{
		NonceID:      account.ID,
		NonceAccount: account.PublicKey,
		Wire:         wire,
	}, nil
}

// Save persists a fully signed transaction as pending. The wire must
// decode and carry a signature in every slot; a transaction the payer
// never signed is rejected here rather than at broadcast time.
func (o *Orchestrator) Save(ctx context.Context, workflowID id.WorkflowID, flowKey string, nonceID id.NonceID, signedWire []byte) (*Transaction, error) {
	tx, err := chain.DecodeTransaction(signedWire)
	if err != nil {
		return nil, err
	}
	for i, sig := range tx.Signatures {
		if sig.IsZero() {
			return nil, fmt.Errorf("flowrge/durable: signature slot %d is empty, transaction is not fully signed", i)
		}
	}

	dtx := NewTransaction(workflowID, flowKey, nonceID, signedWire)
	if err := o.store.CreateTransaction(ctx, dtx); err != nil {
		return nil, err
	}
	o.logger.Info("durable transaction saved",
		slog.String("tx_id", dtx.ID.String()),
		slog.String("workflow_id", workflowID.String()),
		slog.String("flow_key", flowKey),
	)
	return dtx, nil
}

// Submit claims the scope's oldest pending transaction, broadcasts it,
// and waits for confirmation. The claim flips the record to submitting
// atomically, so concurrent submitters for the same scope resolve to
// one broadcast: the losers find nothing pending and return
// (false, nil).
//
// On confirmation the record flips to confirmed and the backing nonce
// account to used. On broadcast or confirmation failure the record
// flips to failed with the error recorded; either way the transaction
// leaves pending exactly once.
func (o *Orchestrator) Submit(ctx context.Context, runID id.RunID, workflowID id.WorkflowID, flowKey string) (bool, error) {
	dtx, err := o.store.ClaimOldestPending(ctx, workflowID, flowKey)
	if err != nil {
		if errors.Is(err, flowrge.ErrTransactionNotFound) {
			return false, nil
		}
		return false, err
	}

	sig, err := o.client.SendTransaction(ctx, dtx.Wire)
	if err != nil {
		o.fail(ctx, runID, dtx, err)
		return false, fmt.Errorf("flowrge/durable: broadcast %s: %w", dtx.ID, err)
	}
	if err := o.client.ConfirmTransaction(ctx, sig, o.confirmTimeout); err != nil {
		o.fail(ctx, runID, dtx, err)
		return false, fmt.Errorf("flowrge/durable: confirm %s: %w", dtx.ID, err)
	}

	if err := o.store.MarkTransactionConfirmed(ctx, dtx.ID, sig.String()); err != nil {
		return false, err
	}
	if err := o.nonces.MarkUsed(ctx, dtx.NonceID); err != nil {
		o.logger.Warn("failed to mark nonce used",
			slog.String("nonce_id", dtx.NonceID.String()),
			slog.String("error", err.Error()),
		)
	}

	o.logger.Info("durable transaction confirmed",
		slog.String("tx_id", dtx.ID.String()),
		slog.String("run_id", runID.String()),
		slog.String("signature", sig.String()),
	)
	if o.registry != nil {
		o.registry.EmitTransferConfirmed(ctx, runID, dtx.ID, sig.String())
	}
	return true, nil
}

// ExpireStaleClaims fails submitting claims older than the submit
// lease. A claim that old means its submitter died between claim and
// confirm; failing the record unblocks nonce reclamation for the scope.
// Meant to run on the sweep schedule.
func (o *Orchestrator) ExpireStaleClaims(ctx context.Context) (int, error) {
	n, err := o.store.ExpireStaleSubmitting(ctx, o.submitLease)
	if err != nil {
		return 0, fmt.Errorf("flowrge/durable: expire stale claims: %w", err)
	}
	if n > 0 {
		o.logger.Warn("expired stale submitting claims", slog.Int("count", n))
	}
	return n, nil
}

func (o *Orchestrator) fail(ctx context.Context, runID id.RunID, dtx *Transaction, cause error) {
	if err := o.store.MarkTransactionFailed(ctx, dtx.ID, cause.Error()); err != nil {
		o.logger.Error("failed to record transaction failure",
			slog.String("tx_id", dtx.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	o.logger.Error("durable transaction failed",
		slog.String("tx_id", dtx.ID.String()),
		slog.String("run_id", runID.String()),
		slog.String("error", cause.Error()),
	)
	if o.registry != nil {
		o.registry.EmitTransferFailed(ctx, runID, dtx.ID, cause)
	}
}
