package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/internal/eth"
	"github.com/layer-3/memowallet/ports"
)

// DirectSubmitter signs calls with the local keystore and submits them to the chain
type DirectSubmitter struct {
	sessions Sessions
	keystore *Keystore
	chain    ports.ChainClient
	history  *TxHistory
	logger   *slog.Logger
}

// NewDirectSubmitter creates a direct submitter. history may be nil.
func NewDirectSubmitter(sessions Sessions, keystore *Keystore, chain ports.ChainClient, history *TxHistory, logger *slog.Logger) *DirectSubmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectSubmitter{
		sessions: sessions,
		keystore: keystore,
		chain:    chain,
		history:  history,
		logger:   logger.With("component", "submit"),
	}
}

// Submit unlocks the current account with password, signs call and waits
// for it to be finalized. Dispatch errors are returned as *core.DispatchError.
func (d *DirectSubmitter) Submit(ctx context.Context, call core.Call, password string) (string, error) {
	sess := d.sessions.GetCurrentSession()
	if sess == nil {
		return "", core.ErrNoSession
	}
	if call.Section == "" || call.Method == "" {
		return "", &core.ValidationError{Field: "call", Reason: "section and method are required"}
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return "", fmt.Errorf("password shorter than %d characters: %w", MinPasswordLength, core.ErrWrongPassword)
	}

	signer, err := d.keystore.Unlock(ctx, password)
	if err != nil {
		if errors.Is(err, core.ErrDecryptionFailed) {
			return "", fmt.Errorf("%w: %w", core.ErrWrongPassword, err)
		}
		return "", err
	}
	if !eth.SameAddress(signer.Address(), sess.Address) {
		return "", fmt.Errorf("session is for %s, keystore unlocked %s: %w", sess.Address, signer.Address(), core.ErrAddressMismatch)
	}

	signed, err := signer.SignCall(call)
	if err != nil {
		return "", err
	}

	hash, err := d.chain.SubmitCall(ctx, signed)
	if err != nil {
		d.logger.Warn("call submission failed", "section", call.Section, "method", call.Method, "error", err)
		return "", err
	}
	d.logger.Info("call finalized", "section", call.Section, "method", call.Method, "hash", hash)

	if d.history != nil {
		if _, err := d.history.Append(ctx, core.TxRecord{
			Hash:    hash,
			Section: call.Section,
			Method:  call.Method,
			Args:    call.Args,
			From:    signer.Address(),
		}); err != nil {
			d.logger.Warn("failed to record transaction", "hash", hash, "error", err)
		}
	}
	d.sessions.UpdateActivity(ctx)
	return hash, nil
}
