package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/internal/clock"
	"github.com/layer-3/memowallet/internal/eth"
	"github.com/layer-3/memowallet/ports"
)

const (
	// MinPasswordLength is the shortest accepted keystore password
	MinPasswordLength = 8

	keystoreEntriesKey = "keystore.entries"
	keystoreCurrentKey = "keystore.current"
)

// KeystoreOption configures a Keystore
type KeystoreOption func(*Keystore)

// WithScrypt overrides the scrypt cost parameters. Tests use keystore.LightScryptN.
func WithScrypt(n, p int) KeystoreOption {
	return func(k *Keystore) {
		k.scryptN = n
		k.scryptP = p
	}
}

// Keystore holds the password-encrypted account secrets and the current account selection
type Keystore struct {
	store  ports.SecureStore
	clock  clock.Clock
	logger *slog.Logger

	scryptN int
	scryptP int

	mu sync.Mutex
}

// NewKeystore creates a keystore persisted in store
func NewKeystore(store ports.SecureStore, c clock.Clock, logger *slog.Logger, opts ...KeystoreOption) *Keystore {
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	k := &Keystore{
		store:   store,
		clock:   c,
		logger:  logger,
		scryptN: keystore.StandardScryptN,
		scryptP: keystore.StandardScryptP,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// EncryptWithPassword seals secret under password
func (k *Keystore) EncryptWithPassword(password, secret string) (*core.KeystoreEntry, error) {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters: %w", MinPasswordLength, core.ErrWeakPassword)
	}

	address, err := eth.DeriveAddress(secret)
	if err != nil {
		return nil, err
	}

	sealed, err := keystore.EncryptDataV3([]byte(secret), []byte(password), k.scryptN, k.scryptP)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt secret: %w", err)
	}

	salt, _ := sealed.KDFParams["salt"].(string)
	return &core.KeystoreEntry{
		Address:    address,
		Ciphertext: sealed.CipherText,
		Salt:       salt,
		IV:         sealed.CipherParams.IV,
		MAC:        sealed.MAC,
		KDF: core.KDFParams{
			N:     kdfInt(sealed.KDFParams["n"]),
			R:     kdfInt(sealed.KDFParams["r"]),
			P:     kdfInt(sealed.KDFParams["p"]),
			DKLen: kdfInt(sealed.KDFParams["dklen"]),
		},
		CreatedAt: k.clock.Now().UTC(),
	}, nil
}

// DecryptWithPassword opens entry. A wrong password or a corrupted entry
// returns core.ErrDecryptionFailed, never a wrong secret.
func (k *Keystore) DecryptWithPassword(password string, entry *core.KeystoreEntry) (string, error) {
	if entry == nil {
		return "", core.ErrNoKeystore
	}

	sealed := keystore.CryptoJSON{
		Cipher:     "aes-128-ctr",
		CipherText: entry.Ciphertext,
		KDF:        "scrypt",
		KDFParams: map[string]interface{}{
			"n":     entry.KDF.N,
			"r":     entry.KDF.R,
			"p":     entry.KDF.P,
			"dklen": entry.KDF.DKLen,
			"salt":  entry.Salt,
		},
		MAC: entry.MAC,
	}
	sealed.CipherParams.IV = entry.IV

	secret, err := decryptV3(sealed, password)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrDecryptionFailed, err)
	}

	address, err := eth.DeriveAddress(string(secret))
	if err != nil || !eth.SameAddress(address, entry.Address) {
		return "", fmt.Errorf("entry %s does not match its secret: %w", entry.Address, core.ErrDecryptionFailed)
	}
	return string(secret), nil
}

// decryptV3 guards against malformed entries, which make the scrypt
// parameter decoding in DecryptDataV3 panic.
func decryptV3(sealed keystore.CryptoJSON, password string) (secret []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed keystore entry: %v", r)
		}
	}()
	return keystore.DecryptDataV3(sealed, password)
}

// Import encrypts secret, stores it and selects it when no account is current
func (k *Keystore) Import(ctx context.Context, password, secret string) (*core.KeystoreEntry, error) {
	entry, err := k.EncryptWithPassword(password, secret)
	if err != nil {
		return nil, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.upsertLocked(ctx, *entry); err != nil {
		return nil, err
	}

	if _, err := k.currentAddressLocked(ctx); errors.Is(err, core.ErrNoCurrentAccount) {
		if err := k.store.SetItem(ctx, keystoreCurrentKey, entry.Address, 0); err != nil {
			return nil, err
		}
	}

	k.logger.Info("keystore entry imported", "address", entry.Address)
	return entry, nil
}

// Upsert stores entry, replacing any entry with the same address
func (k *Keystore) Upsert(ctx context.Context, entry core.KeystoreEntry) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.upsertLocked(ctx, entry)
}

// LoadAll returns every stored entry in insertion order
func (k *Keystore) LoadAll(ctx context.Context) ([]core.KeystoreEntry, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.loadLocked(ctx)
}

// Remove deletes the entry for address and deselects it if it was current
func (k *Keystore) Remove(ctx context.Context, address string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	entries, err := k.loadLocked(ctx)
	if err != nil {
		return err
	}

	kept := entries[:0]
	removed := false
	for _, e := range entries {
		if eth.SameAddress(e.Address, address) {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	if !removed {
		return fmt.Errorf("%s: %w", address, core.ErrNoKeystore)
	}

	if err := k.store.SetItem(ctx, keystoreEntriesKey, kept, 0); err != nil {
		return err
	}

	var current string
	if err := k.store.GetItem(ctx, keystoreCurrentKey, &current); err == nil && eth.SameAddress(current, address) {
		if err := k.store.RemoveItem(ctx, keystoreCurrentKey); err != nil {
			return err
		}
	}

	k.logger.Info("keystore entry removed", "address", address)
	return nil
}

// SetCurrentAddress selects a stored account
func (k *Keystore) SetCurrentAddress(ctx context.Context, address string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, err := k.findLocked(ctx, address)
	if err != nil {
		return err
	}
	return k.store.SetItem(ctx, keystoreCurrentKey, entry.Address, 0)
}

// CurrentAddress returns the selected account. A selection that no longer
// refers to a stored entry is dropped and reported as core.ErrNoCurrentAccount.
func (k *Keystore) CurrentAddress(ctx context.Context) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.currentAddressLocked(ctx)
}

// Current returns the entry of the selected account
func (k *Keystore) Current(ctx context.Context) (*core.KeystoreEntry, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	address, err := k.currentAddressLocked(ctx)
	if err != nil {
		return nil, err
	}
	return k.findLocked(ctx, address)
}

// Unlock decrypts the current entry and returns a signer for it
func (k *Keystore) Unlock(ctx context.Context, password string) (*eth.Signer, error) {
	entry, err := k.Current(ctx)
	if err != nil {
		return nil, err
	}

	secret, err := k.DecryptWithPassword(password, entry)
	if err != nil {
		return nil, err
	}

	signer, err := eth.SignerFromSecret(secret)
	if err != nil {
		return nil, err
	}
	if !eth.SameAddress(signer.Address(), entry.Address) {
		return nil, fmt.Errorf("current account is %s, secret derives %s: %w", entry.Address, signer.Address(), core.ErrAddressMismatch)
	}
	return signer, nil
}

func (k *Keystore) loadLocked(ctx context.Context) ([]core.KeystoreEntry, error) {
	var entries []core.KeystoreEntry
	if err := k.store.GetItem(ctx, keystoreEntriesKey, &entries); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return entries, nil
}

func (k *Keystore) upsertLocked(ctx context.Context, entry core.KeystoreEntry) error {
	address, err := eth.NormalizeAddress(entry.Address)
	if err != nil {
		return err
	}
	entry.Address = address

	entries, err := k.loadLocked(ctx)
	if err != nil {
		return err
	}

	replaced := false
	for i := range entries {
		if eth.SameAddress(entries[i].Address, address) {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}
	return k.store.SetItem(ctx, keystoreEntriesKey, entries, 0)
}

func (k *Keystore) findLocked(ctx context.Context, address string) (*core.KeystoreEntry, error) {
	entries, err := k.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if eth.SameAddress(entries[i].Address, address) {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("%s: %w", address, core.ErrNoKeystore)
}

func (k *Keystore) currentAddressLocked(ctx context.Context) (string, error) {
	var current string
	if err := k.store.GetItem(ctx, keystoreCurrentKey, &current); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", core.ErrNoCurrentAccount
		}
		return "", err
	}

	if _, err := k.findLocked(ctx, current); err != nil {
		if !errors.Is(err, core.ErrNoKeystore) {
			return "", err
		}
		k.logger.Warn("current account has no keystore entry, dropping selection", "address", current)
		if err := k.store.RemoveItem(ctx, keystoreCurrentKey); err != nil {
			return "", err
		}
		return "", core.ErrNoCurrentAccount
	}
	return current, nil
}

func kdfInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
