// Package eth holds the account key helpers shared by the keystore, the
// handshake signer and the reference backend.
package eth

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/memowallet/core"
)

// DeriveKey deterministically derives the account key for a secret phrase.
// Words are whitespace-normalized before hashing.
func DeriveKey(secret string) (*ecdsa.PrivateKey, error) {
	normalized := strings.Join(strings.Fields(secret), " ")
	if normalized == "" {
		return nil, &core.ValidationError{Field: "secret", Reason: "must not be empty"}
	}

	key, err := crypto.ToECDSA(crypto.Keccak256([]byte(normalized)))
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// DeriveAddress returns the checksummed address of the key derived from secret
func DeriveAddress(secret string) (string, error) {
	key, err := DeriveKey(secret)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

// NormalizeAddress validates a hex address and returns its checksummed form
func NormalizeAddress(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("%q: %w", address, core.ErrInvalidAddress)
	}
	return common.HexToAddress(address).Hex(), nil
}

// SameAddress compares two hex addresses case-insensitively
func SameAddress(a, b string) bool {
	if !common.IsHexAddress(a) || !common.IsHexAddress(b) {
		return false
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}
