// Package solana reads transaction finality from a Solana JSON-RPC node.
package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/tidwall/gjson"

	"github.com/alanyoungcy/boldengine/internal/domain"
)

// Commitment levels accepted by getTransaction.
const (
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// ClientConfig configures the RPC client.
type ClientConfig struct {
	Endpoint   string
	Commitment string
	Timeout    time.Duration
}

// Client implements domain.LedgerClient over Solana JSON-RPC.
type Client struct {
	rpc        *rpc.Client
	endpoint   string
	commitment string
	timeout    time.Duration
	logger     *slog.Logger
}

// New dials the RPC endpoint. HTTP endpoints are connected lazily, so an
// unreachable node surfaces on the first Lookup rather than here.
func New(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("solana: rpc endpoint is required")
	}
	commitment := cfg.Commitment
	if commitment == "" {
		commitment = CommitmentConfirmed
	}
	if commitment != CommitmentConfirmed && commitment != CommitmentFinalized {
		return nil, fmt.Errorf("solana: unsupported commitment %q", commitment)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c, err := rpc.DialContext(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("solana: dial %s: %w", cfg.Endpoint, err)
	}

	return &Client{
		rpc:        c,
		endpoint:   cfg.Endpoint,
		commitment: commitment,
		timeout:    timeout,
		logger:     logger.With(slog.String("component", "solana_rpc")),
	}, nil
}

// Endpoint returns the configured RPC URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Close releases the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// Health calls getHealth, which a node answers with "ok" once it is caught
// up with the cluster.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var status string
	if err := c.rpc.CallContext(ctx, &status, "getHealth"); err != nil {
		return fmt.Errorf("solana: getHealth: %w", err)
	}
	if status != "ok" {
		return fmt.Errorf("solana: node reports %q", status)
	}
	return nil
}

// Lookup fetches the transaction identified by signature. A null result means
// the node has not seen the transaction yet at the configured commitment.
func (c *Client) Lookup(ctx context.Context, signature string) (domain.LedgerResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var raw json.RawMessage
	err := c.rpc.CallContext(ctx, &raw, "getTransaction", signature, map[string]any{
		"encoding":                       "json",
		"commitment":                     c.commitment,
		"maxSupportedTransactionVersion": 0,
	})
	if errors.Is(err, rpc.ErrNoResult) {
		return domain.LedgerResult{}, nil
	}
	if err != nil {
		return domain.LedgerResult{}, fmt.Errorf("solana: getTransaction %s: %w", signature, err)
	}

	res, err := parseTransaction(raw)
	if err != nil {
		return domain.LedgerResult{}, fmt.Errorf("solana: getTransaction %s: %w", signature, err)
	}

	c.logger.DebugContext(ctx, "transaction lookup",
		slog.String("signature", signature),
		slog.Bool("found", res.Found),
		slog.Bool("success", res.Success),
	)
	return res, nil
}

// parseTransaction maps a getTransaction result onto a LedgerResult.
func parseTransaction(raw json.RawMessage) (domain.LedgerResult, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return domain.LedgerResult{}, nil
	}
	if !gjson.ValidBytes(raw) {
		return domain.LedgerResult{}, domain.ErrMalformedLedgerResponse
	}

	tx := gjson.ParseBytes(raw)
	if !tx.IsObject() {
		return domain.LedgerResult{}, fmt.Errorf("%w: result is %s", domain.ErrMalformedLedgerResponse, tx.Type)
	}
	// Nodes omit status metadata for some historical transactions. A
	// transaction the ledger returns without a recorded error is final and
	// successful, so absent or null meta counts as success.
	meta := tx.Get("meta")
	if !meta.Exists() || meta.Type == gjson.Null {
		return domain.LedgerResult{Found: true, Success: true}, nil
	}
	if !meta.IsObject() {
		return domain.LedgerResult{}, fmt.Errorf("%w: meta is %s", domain.ErrMalformedLedgerResponse, meta.Type)
	}

	txErr := meta.Get("err")
	if !txErr.Exists() || txErr.Type == gjson.Null {
		return domain.LedgerResult{Found: true, Success: true}, nil
	}
	return domain.LedgerResult{Found: true, Success: false, Error: txErr.Raw}, nil
}

// Compile-time interface check.
var _ domain.LedgerClient = (*Client)(nil)
