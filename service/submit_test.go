package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/internal/clock"
	"github.com/layer-3/memowallet/internal/eth"
	"github.com/layer-3/memowallet/service"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	mu       sync.Mutex
	sess     *core.Session
	activity int
}

func (f *fakeSessions) GetCurrentSession() *core.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess.Clone()
}

func (f *fakeSessions) UpdateActivity(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activity++
}

type fakeRelayer struct {
	sent []*core.ForwardMetaTx
	err  error
}

func (r *fakeRelayer) Forward(ctx context.Context, tx *core.ForwardMetaTx) (*core.RelayReceipt, error) {
	r.sent = append(r.sent, tx)
	if r.err != nil {
		return nil, r.err
	}
	return &core.RelayReceipt{Status: "accepted", Hash: "0xfeed"}, nil
}

type fakeChain struct {
	submitted []*core.SignedCall
	err       error
}

func (c *fakeChain) SubmitCall(ctx context.Context, signed *core.SignedCall) (string, error) {
	c.submitted = append(c.submitted, signed)
	if c.err != nil {
		return "", c.err
	}
	return "0xabc123", nil
}

func liveSession(t *testing.T, phrase string) *fakeSessions {
	t.Helper()
	address, err := eth.DeriveAddress(phrase)
	require.NoError(t, err)
	return &fakeSessions{sess: &core.Session{ID: "s1", Address: address, ExpiresAt: epoch.Add(time.Hour)}}
}

func TestRelaySenderSend(t *testing.T) {
	ctx := context.Background()
	sessions := liveSession(t, phraseA)
	relayer := &fakeRelayer{}
	sender := service.NewRelaySender(sessions, newSecureStore(t, nil), relayer, discardLogger())
	call := core.Call{Section: "evidence", Method: "commit", Args: []any{1, "cid"}}

	receipt, err := sender.Send(ctx, service.NamespaceEvidenceCommit, call, 1000)
	require.NoError(t, err)
	require.Equal(t, "0xfeed", receipt.Hash)

	_, err = sender.Send(ctx, service.NamespaceEvidenceCommit, call, 1000)
	require.NoError(t, err)
	_, err = sender.Send(ctx, service.NamespaceOTCOrder, call, 1000)
	require.NoError(t, err)

	require.Len(t, relayer.sent, 3)
	require.Equal(t, uint32(0), relayer.sent[0].Nonce)
	require.Equal(t, uint32(1), relayer.sent[1].Nonce)
	require.Equal(t, uint32(0), relayer.sent[2].Nonce, "nonces are tracked per namespace")
	require.Equal(t, "s1", relayer.sent[0].SessionID)
	require.Equal(t, sessions.sess.Address, relayer.sent[0].Owner)
	require.Nil(t, relayer.sent[0].Signature)
	require.Equal(t, 3, sessions.activity)
}

func TestRelaySenderRejects(t *testing.T) {
	ctx := context.Background()
	call := core.Call{Section: "evidence", Method: "commit"}

	t.Run("no session", func(t *testing.T) {
		relayer := &fakeRelayer{}
		sender := service.NewRelaySender(&fakeSessions{}, newSecureStore(t, nil), relayer, discardLogger())
		_, err := sender.Send(ctx, service.NamespaceEvidenceCommit, call, 1000)
		require.ErrorIs(t, err, core.ErrNoSession)
		require.Empty(t, relayer.sent)
	})

	t.Run("unknown namespace", func(t *testing.T) {
		relayer := &fakeRelayer{}
		sender := service.NewRelaySender(liveSession(t, phraseA), newSecureStore(t, nil), relayer, discardLogger())
		_, err := sender.Send(ctx, "unknown_", call, 1000)
		require.ErrorIs(t, err, core.ErrUnknownNamespace)
		require.Empty(t, relayer.sent)
	})

	t.Run("invalid call keeps nonce", func(t *testing.T) {
		relayer := &fakeRelayer{}
		sender := service.NewRelaySender(liveSession(t, phraseA), newSecureStore(t, nil), relayer, discardLogger())
		_, err := sender.Send(ctx, service.NamespaceEvidenceCommit, core.Call{Section: "evidence"}, 1000)
		require.ErrorIs(t, err, core.ErrValidation)

		_, err = sender.Send(ctx, service.NamespaceEvidenceCommit, call, 1000)
		require.NoError(t, err)
		require.Equal(t, uint32(0), relayer.sent[0].Nonce)
	})

	t.Run("relay failure does not reuse nonce", func(t *testing.T) {
		sessions := liveSession(t, phraseA)
		relayer := &fakeRelayer{err: core.ErrRelayFailed}
		sender := service.NewRelaySender(sessions, newSecureStore(t, nil), relayer, discardLogger())

		_, err := sender.Send(ctx, service.NamespaceEvidenceCommit, call, 1000)
		require.ErrorIs(t, err, core.ErrRelayFailed)
		require.Zero(t, sessions.activity)

		relayer.err = nil
		_, err = sender.Send(ctx, service.NamespaceEvidenceCommit, call, 1000)
		require.NoError(t, err)
		require.Equal(t, uint32(1), relayer.sent[1].Nonce)
	})
}

type submitFixture struct {
	sessions *fakeSessions
	chain    *fakeChain
	history  *service.TxHistory
	ks       *service.Keystore
	sub      *service.DirectSubmitter
}

func newSubmitFixture(t *testing.T) *submitFixture {
	t.Helper()
	c := clock.NewFake(epoch)
	s := newSecureStore(t, c)
	ks := newKeystore(t, s, c)
	_, err := ks.Import(context.Background(), password, phraseA)
	require.NoError(t, err)

	f := &submitFixture{
		sessions: liveSession(t, phraseA),
		chain:    &fakeChain{},
		history:  service.NewTxHistory(s, c, 2),
		ks:       ks,
	}
	f.sub = service.NewDirectSubmitter(f.sessions, ks, f.chain, f.history, discardLogger())
	return f
}

func TestDirectSubmit(t *testing.T) {
	ctx := context.Background()
	f := newSubmitFixture(t)
	call := core.Call{Section: "memorial", Method: "offer", Args: map[string]any{"grave": 1}}

	hash, err := f.sub.Submit(ctx, call, password)
	require.NoError(t, err)
	require.Equal(t, "0xabc123", hash)
	require.Equal(t, 1, f.sessions.activity)

	require.Len(t, f.chain.submitted, 1)
	signed := f.chain.submitted[0]
	require.Equal(t, f.sessions.sess.Address, signed.Signer)
	require.NoError(t, eth.VerifyCall(signed))

	records, err := f.history.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "0xabc123", records[0].Hash)
	require.Equal(t, "memorial", records[0].Section)
	require.Equal(t, "offer", records[0].Method)
	require.Equal(t, signed.Signer, records[0].From)
	require.NotEmpty(t, records[0].ID)
	require.True(t, records[0].Timestamp.Equal(epoch))
}

func TestDirectSubmitFailures(t *testing.T) {
	ctx := context.Background()
	call := core.Call{Section: "memorial", Method: "offer"}

	t.Run("no session", func(t *testing.T) {
		f := newSubmitFixture(t)
		f.sessions.sess = nil
		_, err := f.sub.Submit(ctx, call, password)
		require.ErrorIs(t, err, core.ErrNoSession)
	})

	t.Run("short password", func(t *testing.T) {
		f := newSubmitFixture(t)
		_, err := f.sub.Submit(ctx, call, "short")
		require.ErrorIs(t, err, core.ErrWrongPassword)
		require.Empty(t, f.chain.submitted)
	})

	t.Run("wrong password", func(t *testing.T) {
		f := newSubmitFixture(t)
		_, err := f.sub.Submit(ctx, call, "not the password")
		require.ErrorIs(t, err, core.ErrWrongPassword)
		require.Empty(t, f.chain.submitted)
	})

	t.Run("invalid call", func(t *testing.T) {
		f := newSubmitFixture(t)
		_, err := f.sub.Submit(ctx, core.Call{Section: "memorial"}, password)
		require.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("session for another account", func(t *testing.T) {
		f := newSubmitFixture(t)
		f.sessions.sess = liveSession(t, phraseB).sess
		_, err := f.sub.Submit(ctx, call, password)
		require.ErrorIs(t, err, core.ErrAddressMismatch)
		require.Empty(t, f.chain.submitted)
	})

	t.Run("dispatch error surfaces verbatim", func(t *testing.T) {
		f := newSubmitFixture(t)
		dispatchErr := &core.DispatchError{Module: "memorial", Name: "GraveNotFound", Docs: []string{"The grave does not exist"}}
		f.chain.err = dispatchErr

		_, err := f.sub.Submit(ctx, call, password)
		var got *core.DispatchError
		require.ErrorAs(t, err, &got)
		require.Same(t, dispatchErr, got)
		require.Equal(t, "memorial.GraveNotFound: The grave does not exist", err.Error())
		require.ErrorIs(t, err, core.ErrDispatch)
		require.Zero(t, f.sessions.activity)

		records, err := f.history.List(ctx)
		require.NoError(t, err)
		require.Empty(t, records)
	})

	t.Run("no keystore", func(t *testing.T) {
		ks := newKeystore(t, newSecureStore(t, nil), nil)
		sub := service.NewDirectSubmitter(liveSession(t, phraseA), ks, &fakeChain{}, nil, discardLogger())
		_, err := sub.Submit(ctx, call, password)
		require.ErrorIs(t, err, core.ErrNoCurrentAccount)
	})
}

func TestTxHistoryLimit(t *testing.T) {
	ctx := context.Background()
	c := clock.NewFake(epoch)
	h := service.NewTxHistory(newSecureStore(t, c), c, 2)

	for _, hash := range []string{"0x1", "0x2", "0x3"} {
		c.Advance(time.Second)
		_, err := h.Append(ctx, core.TxRecord{Hash: hash})
		require.NoError(t, err)
	}

	records, err := h.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "0x3", records[0].Hash)
	require.Equal(t, "0x2", records[1].Hash)
	require.NotEqual(t, records[0].ID, records[1].ID)
}

func TestTxHistoryStorageErrorIsSwallowed(t *testing.T) {
	f := newSubmitFixture(t)
	failing := service.NewTxHistory(failingSecureStore{}, nil, 0)
	sub := service.NewDirectSubmitter(f.sessions, f.ks, f.chain, failing, discardLogger())

	hash, err := sub.Submit(context.Background(), core.Call{Section: "memorial", Method: "offer"}, password)
	require.NoError(t, err)
	require.Equal(t, "0xabc123", hash)
}

type failingSecureStore struct{}

func (failingSecureStore) SetItem(ctx context.Context, key string, value any, ttl time.Duration) error {
	return errors.Join(core.ErrStorage, errors.New("disk full"))
}

func (failingSecureStore) GetItem(ctx context.Context, key string, out any) error {
	return core.ErrNotFound
}

func (failingSecureStore) RemoveItem(ctx context.Context, key string) error { return nil }
