package tokenizer_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/layer-3/memowallet/adapters/tokenizer"
	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/internal/clock"
	"github.com/layer-3/memowallet/internal/eth"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 4, 5, 9, 0, 0, 0, time.UTC)

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func TestSessionTokenRoundTrip(t *testing.T) {
	c := clock.NewFake(epoch)
	tok := tokenizer.NewJWTTokenizer(newKey(t), c)

	issued := &core.IssuedSession{
		ID:        "4f1d6c1e-0000-4000-8000-000000000001",
		Address:   "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		IssuedAt:  epoch,
		ExpiresAt: epoch.Add(24 * time.Hour),
		Allowances: core.Allowances{
			MaxTransactions: 50,
			Namespaces:      []string{"evid___ "},
		},
	}

	token, err := tok.SessionToToken(issued)
	require.NoError(t, err)

	parsed, err := tok.TokenToSession(token)
	require.NoError(t, err)
	require.Equal(t, issued.ID, parsed.ID)
	require.Equal(t, issued.Address, parsed.Address)
	require.Equal(t, issued.Allowances, parsed.Allowances)
	require.True(t, parsed.ExpiresAt.Equal(issued.ExpiresAt))

	t.Run("expired", func(t *testing.T) {
		c.Advance(25 * time.Hour)
		_, err := tok.TokenToSession(token)
		require.ErrorIs(t, err, core.ErrTokenExpired)
	})

	t.Run("foreign key", func(t *testing.T) {
		other := tokenizer.NewJWTTokenizer(newKey(t), clock.NewFake(epoch))
		_, err := other.TokenToSession(token)
		require.ErrorIs(t, err, core.ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := tok.TokenToSession("not-a-jwt")
		require.ErrorIs(t, err, core.ErrInvalidToken)
	})
}

func TestVerifySignature(t *testing.T) {
	tok := tokenizer.NewJWTTokenizer(newKey(t), nil)
	signer, err := eth.SignerFromSecret("quiet lantern river")
	require.NoError(t, err)

	challenge := &core.Challenge{ID: "c1", Address: signer.Address(), Message: "Sign in to memowallet\nNonce: 42"}
	sig, err := signer.SignChallenge(context.Background(), signer.Address(), challenge.Message)
	require.NoError(t, err)

	require.NoError(t, tok.VerifySignature(challenge, sig, signer.Address()))

	other, err := eth.SignerFromSecret("another secret")
	require.NoError(t, err)
	require.ErrorIs(t, tok.VerifySignature(challenge, sig, other.Address()), core.ErrAddressMismatch)

	tampered := *challenge
	tampered.Message += "!"
	require.ErrorIs(t, tok.VerifySignature(&tampered, sig, signer.Address()), core.ErrInvalidSignature)

	require.ErrorIs(t, tok.VerifySignature(challenge, "0x1234", signer.Address()), core.ErrInvalidSignature)
}
