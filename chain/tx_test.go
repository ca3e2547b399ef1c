package chain

import (
	"encoding/json"
	"testing"

	"github.com/gagliardetto/solana-go"
)

func TestBuildDurableTransfer(t *testing.T) {
	payer := solana.NewWallet()
	authority := solana.NewWallet()
	nonceAcc := solana.NewWallet().PublicKey()
	var nonceValue solana.Hash
	nonceValue[0] = 0xAB

	tx, err := BuildDurableTransfer(DurableParams{
		Payer:          payer.PublicKey(),
		NonceAccount:   nonceAcc,
		NonceAuthority: authority.PrivateKey,
		NonceValue:     nonceValue,
		Transfers: []Transfer{
			{To: solana.NewWallet().PublicKey(), Lamports: 1000},
			{To: solana.NewWallet().PublicKey(), Lamports: 2000},
		},
	})
	if err != nil {
		t.Fatalf("BuildDurableTransfer: %v", err)
	}

	if tx.Message.RecentBlockhash != nonceValue {
		t.Fatalf("recent blockhash = %s, want nonce value %s", tx.Message.RecentBlockhash, nonceValue)
	}
	if got := len(tx.Message.Instructions); got != 3 {
		t.Fatalf("instruction count = %d, want 3 (advance + 2 transfers)", got)
	}
	// Fee payer signs last; its signature slot must still be empty.
	if len(tx.Signatures) != 2 {
		t.Fatalf("signature slots = %d, want 2", len(tx.Signatures))
	}
	if !tx.Signatures[0].IsZero() {
		t.Fatal("payer signature slot should be empty after partial sign")
	}
	if tx.Signatures[1].IsZero() {
		t.Fatal("authority signature missing after partial sign")
	}
}

func TestBuildDurableTransferRejectsEmpty(t *testing.T) {
	_, err := BuildDurableTransfer(DurableParams{
		Payer:          solana.NewWallet().PublicKey(),
		NonceAccount:   solana.NewWallet().PublicKey(),
		NonceAuthority: solana.NewWallet().PrivateKey,
	})
	if err == nil {
		t.Fatal("expected error for zero transfers")
	}
}

func TestBuildNonceCreateRoundTrip(t *testing.T) {
	authority := solana.NewWallet()
	nonceKey := solana.NewWallet()
	var recent solana.Hash
	recent[0] = 1

	tx, err := BuildNonceCreate(authority.PrivateKey, nonceKey.PrivateKey, 1_500_000, recent)
	if err != nil {
		t.Fatalf("BuildNonceCreate: %v", err)
	}
	wire, err := EncodeTransaction(tx)
	if err != nil {
		t.Fatalf("EncodeTransaction: %v", err)
	}
	decoded, err := DecodeTransaction(wire)
	if err != nil {
		t.Fatalf("DecodeTransaction: %v", err)
	}
	if decoded.Message.RecentBlockhash != recent {
		t.Fatalf("decoded blockhash = %s, want %s", decoded.Message.RecentBlockhash, recent)
	}
	for i, sig := range decoded.Signatures {
		if sig.IsZero() {
			t.Fatalf("signature %d is empty, creation must be fully signed", i)
		}
	}
}

func TestParsePrivateKey(t *testing.T) {
	key := solana.NewWallet().PrivateKey

	fromBase58, err := ParsePrivateKey(key.String())
	if err != nil {
		t.Fatalf("parse base58: %v", err)
	}
	if !fromBase58.PublicKey().Equals(key.PublicKey()) {
		t.Fatal("base58 round trip changed the key")
	}

	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	arr, err := json.Marshal(ints)
	if err != nil {
		t.Fatalf("marshal key bytes: %v", err)
	}
	fromJSON, err := ParsePrivateKey(string(arr))
	if err != nil {
		t.Fatalf("parse JSON array: %v", err)
	}
	if !fromJSON.PublicKey().Equals(key.PublicKey()) {
		t.Fatal("JSON round trip changed the key")
	}

	if _, err := ParsePrivateKey(""); err == nil {
		t.Fatal("expected error for empty key")
	}
	if _, err := ParsePrivateKey("[1,2,3]"); err == nil {
		t.Fatal("expected error for short key")
	}
}
