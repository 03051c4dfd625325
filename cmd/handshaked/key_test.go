package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateSigningKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "signing.pem")

	created, err := loadOrCreateSigningKey(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := loadOrCreateSigningKey(path)
	require.NoError(t, err)
	require.True(t, created.Equal(loaded))
}

func TestLoadOrCreateSigningKeyRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signing.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a key"), 0o600))

	_, err := loadOrCreateSigningKey(path)
	require.Error(t, err)
}
