package chain

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	flowrge "github.com/Pratikkale26/Flowrge"
)

// nonce account layout: version (4) + state (4) + authority (32) +
// blockhash (32) + fee calculator (8).
const (
	nonceBlockhashOffset = 40
	nonceBlockhashEnd    = 72
)

// RPCClient implements Client over a Solana JSON-RPC endpoint.
type RPCClient struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType
	pollEvery  time.Duration
}

// RPCOption configures an RPCClient.
type RPCOption func(*RPCClient)

// WithCommitment overrides the commitment level used for reads and
// confirmation. Defaults to confirmed.
func WithCommitment(c rpc.CommitmentType) RPCOption {
	return func(r *RPCClient) { r.commitment = c }
}

// WithConfirmPollInterval overrides how often ConfirmTransaction polls
// signature statuses.
func WithConfirmPollInterval(d time.Duration) RPCOption {
	return func(r *RPCClient) {
		if d > 0 {
			r.pollEvery = d
		}
	}
}

// NewRPCClient returns a Client backed by the given RPC endpoint.
func NewRPCClient(endpoint string, opts ...RPCOption) *RPCClient {
	c := &RPCClient{
		rpc:        rpc.New(endpoint),
		commitment: rpc.CommitmentConfirmed,
		pollEvery:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RPCClient) NonceValue(ctx context.Context, account solana.PublicKey) (solana.Hash, error) {
	res, err := c.rpc.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Commitment: c.commitment,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return solana.Hash{}, fmt.Errorf("flowrge/chain: nonce account %s: %w", account, flowrge.ErrNonceMissingOnChain)
		}
		return solana.Hash{}, fmt.Errorf("flowrge/chain: get nonce account %s: %w", account, err)
	}
	if res == nil || res.Value == nil {
		return solana.Hash{}, fmt.Errorf("flowrge/chain: nonce account %s: %w", account, flowrge.ErrNonceMissingOnChain)
	}
	data := res.Value.Data.GetBinary()
	if len(data) < nonceBlockhashEnd {
		return solana.Hash{}, fmt.Errorf("flowrge/chain: nonce account %s: data too short (%d bytes)", account, len(data))
	}
	var h solana.Hash
	copy(h[:], data[nonceBlockhashOffset:nonceBlockhashEnd])
	return h, nil
}

func (c *RPCClient) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	res, err := c.rpc.GetBalance(ctx, account, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("flowrge/chain: get balance %s: %w", account, err)
	}
	return res.Value, nil
}

func (c *RPCClient) RentExemptBalance(ctx context.Context, dataLen uint64) (uint64, error) {
	lamports, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, dataLen, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("flowrge/chain: rent exemption for %d bytes: %w", dataLen, err)
	}
	return lamports, nil
}

func (c *RPCClient) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	res, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("flowrge/chain: latest blockhash: %w", err)
	}
	return res.Value.Blockhash, nil
}

func (c *RPCClient) SendTransaction(ctx context.Context, wire []byte) (solana.Signature, error) {
	sig, err := c.rpc.SendEncodedTransactionWithOpts(ctx,
		base64.StdEncoding.EncodeToString(wire),
		rpc.TransactionOpts{
			PreflightCommitment: c.commitment,
		},
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("flowrge/chain: send transaction: %w", err)
	}
	return sig, nil
}

func (c *RPCClient) ConfirmTransaction(ctx context.Context, sig solana.Signature, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()

	for {
		res, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		if err == nil && res != nil && len(res.Value) > 0 && res.Value[0] != nil {
			st := res.Value[0]
			if st.Err != nil {
				return fmt.Errorf("flowrge/chain: transaction %s failed on chain: %v: %w", sig, st.Err, flowrge.ErrTransactionUnconfirmed)
			}
			switch st.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("flowrge/chain: transaction %s not confirmed within %s: %w", sig, timeout, flowrge.ErrTransactionUnconfirmed)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
