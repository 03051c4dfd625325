package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/ports"
)

const forwardNoncePrefix = "forward.nonce:"

// RelaySender builds forward requests for the live session and hands them to the relayer
type RelaySender struct {
	sessions Sessions
	store    ports.SecureStore
	relayer  ports.Relayer
	logger   *slog.Logger

	mu sync.Mutex
}

// NewRelaySender creates a relay sender
func NewRelaySender(sessions Sessions, store ports.SecureStore, relayer ports.Relayer, logger *slog.Logger) *RelaySender {
	if logger == nil {
		logger = slog.Default()
	}
	return &RelaySender{
		sessions: sessions,
		store:    store,
		relayer:  relayer,
		logger:   logger.With("component", "relay"),
	}
}

// Send forwards call under namespace ns on behalf of the session owner
func (s *RelaySender) Send(ctx context.Context, ns string, call core.Call, validTill int64) (*core.RelayReceipt, error) {
	sess := s.sessions.GetCurrentSession()
	if sess == nil {
		return nil, core.ErrNoSession
	}
	if !IsKnownNamespace(ns) {
		return nil, fmt.Errorf("%q: %w", ns, core.ErrUnknownNamespace)
	}

	tx, err := s.reserve(ctx, ns, sess, call, validTill)
	if err != nil {
		return nil, err
	}

	receipt, err := s.relayer.Forward(ctx, tx)
	if err != nil {
		s.logger.Warn("forward request failed", "ns", ns, "nonce", tx.Nonce, "error", err)
		return nil, err
	}

	s.logger.Info("forward request relayed", "ns", ns, "nonce", tx.Nonce, "hash", receipt.Hash)
	s.sessions.UpdateActivity(ctx)
	return receipt, nil
}

// reserve builds the request and persists the next nonce for (ns, owner)
// before the request leaves the process.
func (s *RelaySender) reserve(ctx context.Context, ns string, sess *core.Session, call core.Call, validTill int64) (*core.ForwardMetaTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := forwardNoncePrefix + ns + ":" + sess.Address
	var nonce int64
	if err := s.store.GetItem(ctx, key, &nonce); err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("failed to load forward nonce: %w", err)
	}

	tx, err := BuildForwardRequest(core.ForwardRequest{
		NS:        ns,
		SessionID: sess.ID,
		Owner:     sess.Address,
		Call:      call,
		Nonce:     nonce,
		ValidTill: validTill,
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.SetItem(ctx, key, nonce+1, 0); err != nil {
		return nil, fmt.Errorf("failed to store forward nonce: %w", err)
	}
	return tx, nil
}
