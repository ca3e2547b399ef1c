// Package gateway is a JSON-RPC client for the transaction relay used by
// the instant (non-durable) payment path. The relay rewrites an unsigned
// transfer with its own fee payer and blockhash, returns it for signing,
// and broadcasts the signed result.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	flowrge "github.com/Pratikkale26/Flowrge"
	"github.com/Pratikkale26/Flowrge/chain"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for relay calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client calls the relay's JSON-RPC endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a relay client for the given endpoint. The endpoint
// carries the network and API key in its path and query.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	ID      string `json:"id"`
	Jsonrpc string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, id, method string, params []any, result any) error {
	body, err := json.Marshal(rpcRequest{
		ID:      id,
		Jsonrpc: "2.0",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("flowrge/gateway: encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("flowrge/gateway: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("flowrge/gateway: %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("flowrge/gateway: %s: unexpected status %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("flowrge/gateway: decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("flowrge/gateway: %s: rpc error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("flowrge/gateway: decode %s result: %w", method, err)
		}
	}
	return nil
}

// BuildTransaction sends an unsigned wire transaction to the relay and
// returns the rewritten transaction the relay wants signed.
func (c *Client) BuildTransaction(ctx context.Context, unsignedWire []byte) ([]byte, error) {
	var result struct {
		Transaction string `json:"transaction"`
	}
	params := []any{base64.StdEncoding.EncodeToString(unsignedWire), map[string]any{}}
	if err := c.call(ctx, "flowrge-build", "buildGatewayTransaction", params, &result); err != nil {
		return nil, err
	}
	if result.Transaction == "" {
		return nil, flowrge.ErrGatewayNoTransaction
	}
	wire, err := base64.StdEncoding.DecodeString(result.Transaction)
	if err != nil {
		return nil, fmt.Errorf("flowrge/gateway: decode built transaction: %w", err)
	}
	return wire, nil
}

// SendTransaction broadcasts a fully signed wire transaction through the
// relay and returns its signature.
func (c *Client) SendTransaction(ctx context.Context, signedWire []byte) (string, error) {
	var signature string
	params := []any{base64.StdEncoding.EncodeToString(signedWire)}
	if err := c.call(ctx, "flowrge-send", "sendTransaction", params, &signature); err != nil {
		return "", err
	}
	if signature == "" {
		return "", flowrge.ErrGatewayNoSignature
	}
	return signature, nil
}

// InstantTransfer builds a plain transfer from the payer, lets the relay
// rewrite it, signs the result, and broadcasts it. The relay supplies the
// blockhash, so the local transaction carries a placeholder.
func (c *Client) InstantTransfer(ctx context.Context, payer solana.PrivateKey, to solana.PublicKey, lamports uint64) (string, error) {
	unsigned, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports, payer.PublicKey(), to).Build(),
		},
		solana.Hash{},
		solana.TransactionPayer(payer.PublicKey()),
	)
	if err != nil {
		return "", fmt.Errorf("flowrge/gateway: assemble transfer: %w", err)
	}
	unsignedWire, err := chain.EncodeTransaction(unsigned)
	if err != nil {
		return "", fmt.Errorf("flowrge/gateway: encode transfer: %w", err)
	}

	builtWire, err := c.BuildTransaction(ctx, unsignedWire)
	if err != nil {
		return "", err
	}
	built, err := chain.DecodeTransaction(builtWire)
	if err != nil {
		return "", fmt.Errorf("flowrge/gateway: decode built transaction: %w", err)
	}

	_, err = built.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer.PublicKey()) {
			return &payer
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("flowrge/gateway: sign built transaction: %w", err)
	}
	signedWire, err := chain.EncodeTransaction(built)
	if err != nil {
		return "", fmt.Errorf("flowrge/gateway: encode signed transaction: %w", err)
	}

	signature, err := c.SendTransaction(ctx, signedWire)
	if err != nil {
		return "", err
	}
	c.logger.Info("instant transfer sent",
		slog.String("to", to.String()),
		slog.Uint64("lamports", lamports),
		slog.String("signature", signature),
	)
	return signature, nil
}
