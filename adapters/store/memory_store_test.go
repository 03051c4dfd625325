package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/layer-3/memowallet/adapters/store"
	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/internal/clock"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	c := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	kv := store.NewMemoryStore(c)

	require.NoError(t, kv.Set(ctx, "short", []byte("a"), time.Minute))
	require.NoError(t, kv.Set(ctx, "forever", []byte("b"), 0))

	v, err := kv.Get(ctx, "short")
	require.NoError(t, err)
	require.Equal(t, []byte("a"), v)

	c.Advance(time.Minute)

	_, err = kv.Get(ctx, "short")
	require.ErrorIs(t, err, core.ErrNotFound)
	require.Equal(t, 1, kv.Len(), "expired key should be purged on read")

	v, err = kv.Get(ctx, "forever")
	require.NoError(t, err)
	require.Equal(t, []byte("b"), v)
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore(nil)

	value := []byte("abc")
	require.NoError(t, kv.Set(ctx, "k", value, 0))
	value[0] = 'x'

	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), got)

	got[1] = 'y'
	again, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), again)

	require.NoError(t, kv.Delete(ctx, "k"))
	require.NoError(t, kv.Delete(ctx, "k"))
	_, err = kv.Get(ctx, "k")
	require.ErrorIs(t, err, core.ErrNotFound)
}
