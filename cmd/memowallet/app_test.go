package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/layer-3/memowallet/adapters/store"
	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/internal/config"
	"github.com/layer-3/memowallet/internal/eth"
	"github.com/stretchr/testify/require"
)

func TestAuthMode(t *testing.T) {
	cfg := config.Default()
	mode, err := authMode(cfg)
	require.NoError(t, err)
	require.Equal(t, core.AuthModeStrict, mode)

	cfg.AllowDevSession = true
	mode, err = authMode(cfg)
	require.NoError(t, err)
	require.Equal(t, core.AuthModeDevelopmentFallback, mode)

	cfg.Env = "prod"
	_, err = authMode(cfg)
	require.Error(t, err)
}

func TestLoadOrCreateStoreKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.key")

	key, err := loadOrCreateStoreKey(path)
	require.NoError(t, err)
	require.Len(t, key, store.KeySize)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := loadOrCreateStoreKey(path)
	require.NoError(t, err)
	require.Equal(t, key, again)
}

func TestLoadOrCreateStoreKeyRejectsShortKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.key")
	require.NoError(t, os.WriteFile(path, []byte("abcd\n"), 0o600))

	_, err := loadOrCreateStoreKey(path)
	require.Error(t, err)
}

func TestParseCall(t *testing.T) {
	call, err := parseCall("balances", "transfer", `["5Grw", 10]`)
	require.NoError(t, err)
	require.Equal(t, "balances", call.Section)
	require.Equal(t, []any{"5Grw", float64(10)}, call.Args)

	call, err = parseCall("system", "remark", "")
	require.NoError(t, err)
	require.Equal(t, []any{}, call.Args)

	_, err = parseCall("system", "remark", "[1,")
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "args", verr.Field)
}

func TestLazySigner(t *testing.T) {
	l := &lazySigner{}
	_, err := l.SignChallenge(context.Background(), "0x0", "hello")
	require.Error(t, err)

	signer, err := eth.SignerFromSecret("test test test test test test test test test test test junk")
	require.NoError(t, err)
	l.set(signer)

	sig, err := l.SignChallenge(context.Background(), signer.Address(), "hello")
	require.NoError(t, err)
	require.NoError(t, eth.VerifyTextSignature([]byte("hello"), sig, signer.Address()))
}

func TestAbbreviate(t *testing.T) {
	require.Equal(t, "short", abbreviate("short"))
	long := "eyJhbGciOiJFUzI1NiIsInR5cCI6IkpXVCJ9.payload.signature"
	require.Equal(t, long[:12]+"..."+long[len(long)-8:], abbreviate(long))
}
