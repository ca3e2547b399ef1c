package chain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// ParsePrivateKey accepts a secret key in either of the two formats
// wallets export: a JSON byte array or a base58 string.
func ParsePrivateKey(raw string) (solana.PrivateKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("flowrge/chain: empty private key")
	}
	if strings.HasPrefix(raw, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(raw), &ints); err != nil {
			return nil, fmt.Errorf("flowrge/chain: parse private key JSON: %w", err)
		}
		if len(ints) != 64 {
			return nil, fmt.Errorf("flowrge/chain: private key must be 64 bytes, got %d", len(ints))
		}
		key := make(solana.PrivateKey, 64)
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("flowrge/chain: private key byte %d out of range", i)
			}
			key[i] = byte(v)
		}
		return key, nil
	}
	key, err := solana.PrivateKeyFromBase58(raw)
	if err != nil {
		return nil, fmt.Errorf("flowrge/chain: parse private key base58: %w", err)
	}
	return key, nil
}
