package chain

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// Transfer is a single lamport movement in a durable transaction.
type Transfer struct {
	To       solana.PublicKey
	Lamports uint64
}

// DurableParams describes a durable-nonce transaction before assembly.
type DurableParams struct {
	// Payer both funds fees and is the source of every transfer.
	Payer solana.PublicKey

	// NonceAccount supplies the transaction's blockhash slot.
	NonceAccount solana.PublicKey

	// NonceAuthority advances the nonce and co-signs.
	NonceAuthority solana.PrivateKey

	// NonceValue is the blockhash currently stored in the nonce account.
	NonceValue solana.Hash

	Transfers []Transfer
}

// BuildDurableTransfer assembles a durable-nonce transaction: an advance
// instruction first, then the transfers. The authority partially signs;
// the payer's signature slot stays empty until the owner signs.
func BuildDurableTransfer(p DurableParams) (*solana.Transaction, error) {
	if len(p.Transfers) == 0 {
		return nil, fmt.Errorf("flowrge/chain: durable transaction needs at least one transfer")
	}
	authorityPub := p.NonceAuthority.PublicKey()
	instrs := []solana.Instruction{
		system.NewAdvanceNonceAccountInstruction(
			p.NonceAccount,
			solana.SysVarRecentBlockHashesPubkey,
			authorityPub,
		).Build(),
	}
	for _, t := range p.Transfers {
		instrs = append(instrs, system.NewTransferInstruction(
			t.Lamports,
			p.Payer,
			t.To,
		).Build())
	}
	tx, err := solana.NewTransaction(instrs,
		solana.Hash(p.NonceValue),
		solana.TransactionPayer(p.Payer),
	)
	if err != nil {
		return nil, fmt.Errorf("flowrge/chain: assemble durable transaction: %w", err)
	}
	_, err = tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(authorityPub) {
			return &p.NonceAuthority
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("flowrge/chain: partial sign durable transaction: %w", err)
	}
	return tx, nil
}

// BuildNonceCreate assembles and fully signs a transaction that creates
// and initializes a nonce account owned by the authority.
func BuildNonceCreate(authority solana.PrivateKey, nonceKey solana.PrivateKey, rentLamports uint64, recent solana.Hash) (*solana.Transaction, error) {
	authorityPub := authority.PublicKey()
	noncePub := nonceKey.PublicKey()
	tx, err := solana.NewTransaction([]solana.Instruction{
		system.NewCreateAccountInstruction(
			rentLamports,
			NonceAccountSize,
			solana.SystemProgramID,
			authorityPub,
			noncePub,
		).Build(),
		system.NewInitializeNonceAccountInstruction(
			authorityPub,
			noncePub,
			solana.SysVarRecentBlockHashesPubkey,
			solana.SysVarRentPubkey,
		).Build(),
	},
		recent,
		solana.TransactionPayer(authorityPub),
	)
	if err != nil {
		return nil, fmt.Errorf("flowrge/chain: assemble nonce creation: %w", err)
	}
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		switch {
		case key.Equals(authorityPub):
			return &authority
		case key.Equals(noncePub):
			return &nonceKey
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("flowrge/chain: sign nonce creation: %w", err)
	}
	return tx, nil
}

// BuildNonceWithdraw assembles and signs a transaction that drains a
// nonce account back to the authority, closing it.
func BuildNonceWithdraw(authority solana.PrivateKey, nonceAccount solana.PublicKey, lamports uint64, recent solana.Hash) (*solana.Transaction, error) {
	authorityPub := authority.PublicKey()
	tx, err := solana.NewTransaction([]solana.Instruction{
		system.NewWithdrawNonceAccountInstruction(
			lamports,
			nonceAccount,
			authorityPub,
			solana.SysVarRecentBlockHashesPubkey,
			solana.SysVarRentPubkey,
			authorityPub,
		).Build(),
	},
		recent,
		solana.TransactionPayer(authorityPub),
	)
	if err != nil {
		return nil, fmt.Errorf("flowrge/chain: assemble nonce withdrawal: %w", err)
	}
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(authorityPub) {
			return &authority
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("flowrge/chain: sign nonce withdrawal: %w", err)
	}
	return tx, nil
}

// EncodeTransaction serializes a transaction to its wire form.
func EncodeTransaction(tx *solana.Transaction) ([]byte, error) {
	wire, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("flowrge/chain: encode transaction: %w", err)
	}
	return wire, nil
}

// DecodeTransaction parses a wire-form transaction.
func DecodeTransaction(wire []byte) (*solana.Transaction, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(wire))
	if err != nil {
		return nil, fmt.Errorf("flowrge/chain: decode transaction: %w", err)
	}
	return tx, nil
}
