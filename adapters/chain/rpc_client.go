// Package chain submits signed calls to a node over JSON-RPC subscriptions.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/layer-3/memowallet/core"
	"github.com/shopspring/decimal"
)

// DefaultDialTimeout bounds the connection bootstrap
const DefaultDialTimeout = 30 * time.Second

// Call statuses delivered by the author submitAndWatchCall subscription
const (
	StatusReady     = "ready"
	StatusInBlock   = "inBlock"
	StatusFinalized = "finalized"
	StatusInvalid   = "invalid"
	StatusDropped   = "dropped"
)

// ErrCallRejected is returned when the node drops or invalidates a call before inclusion
var ErrCallRejected = errors.New("call rejected by node")

// CallStatus is one notification of a watched call
type CallStatus struct {
	Type          string              `json:"type"`
	Hash          string              `json:"hash,omitempty"`
	BlockHash     string              `json:"blockHash,omitempty"`
	Reason        string              `json:"reason,omitempty"`
	DispatchError *core.DispatchError `json:"dispatchError,omitempty"`
}

// Dial connects to a node, failing once timeout elapses
func Dial(ctx context.Context, url string, timeout time.Duration) (*rpc.Client, error) {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	return client, nil
}

// RPCClient implements ports.ChainClient
type RPCClient struct {
	client   *rpc.Client
	decimals int32
	symbol   string
	logger   *slog.Logger
}

// NewRPCClient wraps a connected client. decimals and symbol describe the native token.
func NewRPCClient(client *rpc.Client, decimals int32, symbol string, logger *slog.Logger) *RPCClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &RPCClient{
		client:   client,
		decimals: decimals,
		symbol:   symbol,
		logger:   logger.With("component", "chain"),
	}
}

// SubmitCall submits signed and blocks until it is finalized. The call goes
// out as author_subscribe with "submitAndWatchCall" as the first parameter and
// statuses arrive as author_subscription notifications.
func (c *RPCClient) SubmitCall(ctx context.Context, signed *core.SignedCall) (string, error) {
	statuses := make(chan CallStatus, 8)
	sub, err := c.client.Subscribe(ctx, "author", statuses, "submitAndWatchCall", signed)
	if err != nil {
		return "", fmt.Errorf("failed to submit call: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case st := <-statuses:
			switch st.Type {
			case StatusReady:
				c.logger.Debug("call ready", "section", signed.Call.Section, "method", signed.Call.Method)
			case StatusInBlock:
				c.logger.Info("call in block", "block", st.BlockHash)
			case StatusFinalized:
				if st.DispatchError != nil {
					return "", st.DispatchError
				}
				c.logger.Info("call finalized", "block", st.BlockHash, "hash", st.Hash)
				return st.Hash, nil
			case StatusInvalid, StatusDropped:
				return "", fmt.Errorf("%w: %s: %s", ErrCallRejected, st.Type, st.Reason)
			default:
				c.logger.Debug("ignoring call status", "type", st.Type)
			}
		case err := <-sub.Err():
			if err == nil {
				return "", errors.New("call subscription closed")
			}
			return "", fmt.Errorf("call subscription failed: %w", err)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// FreeBalance returns the spendable balance of address in whole tokens
func (c *RPCClient) FreeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	var raw string
	if err := c.client.CallContext(ctx, &raw, "system_freeBalance", address); err != nil {
		return decimal.Zero, fmt.Errorf("failed to query balance: %w", err)
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed balance %q: %w", raw, err)
	}
	return amount.Shift(-c.decimals), nil
}

// FormatBalance renders amount with the token symbol
func (c *RPCClient) FormatBalance(amount decimal.Decimal) string {
	return amount.StringFixed(4) + " " + c.symbol
}

// Close disconnects from the node
func (c *RPCClient) Close() {
	c.client.Close()
}
