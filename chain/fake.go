package chain

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	flowrge "github.com/Pratikkale26/Flowrge"
)

// Fake is an in-memory Client for tests. Nonce accounts are registered
// explicitly; sends record the wire bytes and confirm instantly unless
// failure is scripted.
type Fake struct {
	mu sync.Mutex

	nonces   map[solana.PublicKey]solana.Hash
	balances map[solana.PublicKey]uint64
	sent     [][]byte

	// NonceErr, when set, is returned by every NonceValue call.
	NonceErr error
	// SendErr, when set, is returned by every SendTransaction call.
	SendErr error
	// ConfirmErr, when set, is returned by every ConfirmTransaction call.
	ConfirmErr error

	rentExempt uint64
}

// NewFake returns a Fake with a fixed rent exemption of 1_500_000
// lamports.
func NewFake() *Fake {
	return &Fake{
		nonces:     make(map[solana.PublicKey]solana.Hash),
		balances:   make(map[solana.PublicKey]uint64),
		rentExempt: 1_500_000,
	}
}

// SetNonce registers a nonce account holding the given value.
func (f *Fake) SetNonce(account solana.PublicKey, value solana.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonces[account] = value
}

// RemoveNonce deletes a nonce account, making NonceValue report it
// missing.
func (f *Fake) RemoveNonce(account solana.PublicKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.nonces, account)
}

// SetBalance sets an account's lamport balance.
func (f *Fake) SetBalance(account solana.PublicKey, lamports uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[account] = lamports
}

// Sent returns copies of every wire transaction broadcast so far.
func (f *Fake) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	for i, w := range f.sent {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

func (f *Fake) NonceValue(_ context.Context, account solana.PublicKey) (solana.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NonceErr != nil {
		return solana.Hash{}, f.NonceErr
	}
	h, ok := f.nonces[account]
	if !ok {
		return solana.Hash{}, fmt.Errorf("flowrge/chain: nonce account %s: %w", account, flowrge.ErrNonceMissingOnChain)
	}
	return h, nil
}

func (f *Fake) Balance(_ context.Context, account solana.PublicKey) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[account], nil
}

func (f *Fake) RentExemptBalance(context.Context, uint64) (uint64, error) {
	return f.rentExempt, nil
}

func (f *Fake) LatestBlockhash(context.Context) (solana.Hash, error) {
	var h solana.Hash
	if _, err := rand.Read(h[:]); err != nil {
		return solana.Hash{}, err
	}
	return h, nil
}

func (f *Fake) SendTransaction(_ context.Context, wire []byte) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return solana.Signature{}, f.SendErr
	}
	f.sent = append(f.sent, append([]byte(nil), wire...))
	var sig solana.Signature
	if _, err := rand.Read(sig[:]); err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}

func (f *Fake) ConfirmTransaction(context.Context, solana.Signature, time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ConfirmErr
}
