package eth

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/memowallet/core"
)

// Signer signs with an unlocked account key
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner wraps an account key
func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// SignerFromSecret derives the account key for secret and wraps it
func SignerFromSecret(secret string) (*Signer, error) {
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	return NewSigner(key), nil
}

// Address returns the checksummed signer address
func (s *Signer) Address() string {
	return s.address.Hex()
}

// SignText produces an EIP-191 personal_sign signature with V in {27, 28}
func (s *Signer) SignText(msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// SignChallenge implements ports.ChallengeSigner
func (s *Signer) SignChallenge(ctx context.Context, address, message string) (string, error) {
	if !SameAddress(address, s.Address()) {
		return "", fmt.Errorf("signer is %s, challenge is for %s: %w", s.Address(), address, core.ErrAddressMismatch)
	}
	sig, err := s.SignText([]byte(message))
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

// SignCall signs the keccak hash of the call's canonical JSON
func (s *Signer) SignCall(call core.Call) (*core.SignedCall, error) {
	hash, err := CallHash(call, s.Address())
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign call: %w", err)
	}
	return &core.SignedCall{
		Call:      call,
		Signer:    s.Address(),
		Signature: hexutil.Encode(sig),
	}, nil
}

// CallHash is the digest a signed call commits to
func CallHash(call core.Call, signer string) ([]byte, error) {
	payload, err := json.Marshal(struct {
		Call   core.Call `json:"call"`
		Signer string    `json:"signer"`
	}{call, signer})
	if err != nil {
		return nil, fmt.Errorf("failed to encode call: %w", err)
	}
	return crypto.Keccak256(payload), nil
}
