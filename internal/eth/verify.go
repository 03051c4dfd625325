package eth

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/memowallet/core"
)

// RecoverTextSigner returns the address that produced a personal_sign signature over msg
func RecoverTextSigner(msg []byte, signature string) (common.Address, error) {
	sig, err := decodeSignature(signature)
	if err != nil {
		return common.Address{}, err
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(msg), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", core.ErrInvalidSignature)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyTextSignature checks that address signed msg
func VerifyTextSignature(msg []byte, signature, address string) error {
	if !common.IsHexAddress(address) {
		return core.ErrInvalidAddress
	}
	signer, err := RecoverTextSigner(msg, signature)
	if err != nil {
		return err
	}
	if signer != common.HexToAddress(address) {
		return core.ErrInvalidSignature
	}
	return nil
}

// VerifyCall checks a signed call against its declared signer
func VerifyCall(signed *core.SignedCall) error {
	sig, err := decodeSignature(signed.Signature)
	if err != nil {
		return err
	}
	hash, err := CallHash(signed.Call, signed.Signer)
	if err != nil {
		return err
	}
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return fmt.Errorf("failed to recover signer: %w", core.ErrInvalidSignature)
	}
	if !SameAddress(crypto.PubkeyToAddress(*pub).Hex(), signed.Signer) {
		return core.ErrInvalidSignature
	}
	return nil
}

func decodeSignature(signature string) ([]byte, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", core.ErrInvalidSignature)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, core.ErrInvalidSignature)
	}
	return sig, nil
}
