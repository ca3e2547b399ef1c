package nonce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	flowrge "github.com/Pratikkale26/Flowrge"
	"github.com/Pratikkale26/Flowrge/chain"
	"github.com/Pratikkale26/Flowrge/id"
)

// Manager creates, tracks, and reclaims nonce accounts.
type Manager struct {
	store          Store
	client         chain.Client
	authority      solana.PrivateKey
	logger         *slog.Logger
	confirmTimeout time.Duration
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithConfirmTimeout overrides how long creation and withdrawal
// transactions may take to confirm. Defaults to 60s.
func WithConfirmTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.confirmTimeout = d
		}
	}
}

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a nonce manager. The authority funds, co-signs,
// and reclaims every account.
func NewManager(store Store, client chain.Client, authority solana.PrivateKey, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:          store,
		client:         client,
		authority:      authority,
		logger:         slog.Default(),
		confirmTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureActive returns the scope's active nonce account, creating one
// on chain when the scope has none. The store row is claimed before the
// on-chain creation, so concurrent callers produce exactly one
// creation: the loser of the claim re-reads and returns the winner's
// account.
func (m *Manager) EnsureActive(ctx context.Context, workflowID id.WorkflowID, flowKey string) (*Account, error) {
	existing, err := m.store.GetActiveNonce(ctx, workflowID, flowKey)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, flowrge.ErrNonceNotFound) {
		return nil, err
	}

	nonceKey := solana.NewWallet().PrivateKey
	account := NewAccount(workflowID, flowKey, nonceKey.PublicKey().String())

	if err := m.store.CreateNonce(ctx, account); err != nil {
		if errors.Is(err, flowrge.ErrNonceAlreadyActive) {
			return m.store.GetActiveNonce(ctx, workflowID, flowKey)
		}
		return nil, err
	}

	if err := m.createOnChain(ctx, nonceKey); err != nil {
		// Retire the claimed row so the scope can try again.
		if closeErr := m.store.MarkNonceClosed(ctx, account.ID); closeErr != nil {
			m.logger.Warn("failed to retire nonce row after creation error",
				slog.String("nonce_id", account.ID.String()),
				slog.String("error", closeErr.Error()),
			)
		}
		return nil, err
	}

	m.logger.Info("nonce account created",
		slog.String("nonce_id", account.ID.String()),
		slog.String("workflow_id", workflowID.String()),
		slog.String("flow_key", flowKey),
		slog.String("public_key", account.PublicKey),
	)
	return account, nil
}

func (m *Manager) createOnChain(ctx context.Context, nonceKey solana.PrivateKey) error {
	rent, err := m.client.RentExemptBalance(ctx, chain.NonceAccountSize)
	if err != nil {
		return err
	}
	recent, err := m.client.LatestBlockhash(ctx)
	if err != nil {
		return err
	}
	tx, err := chain.BuildNonceCreate(m.authority, nonceKey, rent, recent)
	if err != nil {
		return err
	}
	wire, err := chain.EncodeTransaction(tx)
	if err != nil {
		return err
	}
	sig, err := m.client.SendTransaction(ctx, wire)
	if err != nil {
		return fmt.Errorf("flowrge/nonce: send creation: %w", err)
	}
	return m.client.ConfirmTransaction(ctx, sig, m.confirmTimeout)
}

// MarkUsed flips an account to used after its nonce was consumed.
func (m *Manager) MarkUsed(ctx context.Context, nonceID id.NonceID) error {
	return m.store.MarkNonceUsed(ctx, nonceID)
}

// Cleanup reclaims up to limit used accounts that no pending durable
// transaction references. Zero-balance accounts are closed directly;
// funded accounts are drained to the authority first. Returns how many
// accounts were closed.
func (m *Manager) Cleanup(ctx context.Context, limit int) (int, error) {
	accounts, err := m.store.ListReclaimableNonces(ctx, limit)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, account := range accounts {
		if err := m.reclaim(ctx, account); err != nil {
			m.logger.Warn("nonce reclamation failed",
				slog.String("nonce_id", account.ID.String()),
				slog.String("public_key", account.PublicKey),
				slog.String("error", err.Error()),
			)
			continue
		}
		closed++
	}
	return closed, nil
}

func (m *Manager) reclaim(ctx context.Context, account *Account) error {
	pub, err := solana.PublicKeyFromBase58(account.PublicKey)
	if err != nil {
		return fmt.Errorf("flowrge/nonce: bad stored public key %q: %w", account.PublicKey, err)
	}

	balance, err := m.client.Balance(ctx, pub)
	if err != nil {
		return err
	}
	if balance > 0 {
		if err := m.withdraw(ctx, pub, balance); err != nil {
			return err
		}
	}
	if err := m.store.MarkNonceClosed(ctx, account.ID); err != nil {
		return err
	}
	m.logger.Info("nonce account closed",
		slog.String("nonce_id", account.ID.String()),
		slog.Uint64("reclaimed_lamports", balance),
	)
	return nil
}

func (m *Manager) withdraw(ctx context.Context, account solana.PublicKey, lamports uint64) error {
	recent, err := m.client.LatestBlockhash(ctx)
	if err != nil {
		return err
	}
	tx, err := chain.BuildNonceWithdraw(m.authority, account, lamports, recent)
	if err != nil {
		return err
	}
	wire, err := chain.EncodeTransaction(tx)
	if err != nil {
		return err
	}
	sig, err := m.client.SendTransaction(ctx, wire)
	if err != nil {
		return fmt.Errorf("flowrge/nonce: send withdrawal: %w", err)
	}
	return m.client.ConfirmTransaction(ctx, sig, m.confirmTimeout)
}
