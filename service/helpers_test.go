package service_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/layer-3/memowallet/adapters/store"
	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/internal/clock"
	"github.com/layer-3/memowallet/service"
	"github.com/stretchr/testify/require"
)

const (
	phraseA  = "grave orchard lantern quiet river stone ember willow paper candle moss echo"
	phraseB  = "north gate cedar bell incense river hill jade lotus mist ash dawn"
	password = "correct horse battery"
)

var epoch = time.Date(2026, 4, 5, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSecureStore(t *testing.T, c clock.Clock) *store.SecureStore {
	t.Helper()
	_, s := newStores(t, c)
	return s
}

func newStores(t *testing.T, c clock.Clock) (*store.MemoryStore, *store.SecureStore) {
	t.Helper()
	kv := store.NewMemoryStore(c)
	s, err := store.NewSecureStore(kv, bytes.Repeat([]byte{7}, store.KeySize), c)
	require.NoError(t, err)
	return kv, s
}

func newKeystore(t *testing.T, s *store.SecureStore, c clock.Clock) *service.Keystore {
	t.Helper()
	return service.NewKeystore(s, c, discardLogger(), service.WithScrypt(keystore.LightScryptN, keystore.LightScryptP))
}

// stubHandshaker returns queued results in order, repeating the last one.
type stubHandshaker struct {
	mu      sync.Mutex
	results []stubResult
	calls   []string
	gate    chan struct{} // when set, Handshake blocks until it is closed
	entered chan struct{} // when set, receives once per call before blocking on gate
}

type stubResult struct {
	res *core.HandshakeResult
	err error
}

func (h *stubHandshaker) push(sessionID string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.results = append(h.results, stubResult{err: err})
		return
	}
	h.results = append(h.results, stubResult{res: &core.HandshakeResult{SessionID: sessionID, Allowances: []byte(`{}`)}})
}

func (h *stubHandshaker) Handshake(ctx context.Context, address string) (*core.HandshakeResult, error) {
	h.mu.Lock()
	gate, entered := h.gate, h.entered
	h.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, address)
	if len(h.results) == 0 {
		return nil, errors.New("backend unreachable")
	}
	r := h.results[0]
	if len(h.results) > 1 {
		h.results = h.results[1:]
	}
	return r.res, r.err
}

func (h *stubHandshaker) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

type fixedProbe struct{ info service.DeviceInfo }

func (p *fixedProbe) Probe() service.DeviceInfo { return p.info }

func defaultDevice() service.DeviceInfo {
	return service.DeviceInfo{
		UserAgent:           "memowallet-test",
		Language:            "en-AU",
		ScreenWidth:         1920,
		ScreenHeight:        1080,
		HardwareConcurrency: 8,
		TimeZone:            "Australia/Sydney",
	}
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []core.SessionEvent
}

func (p *recordingPublisher) PublishSessionEvent(ctx context.Context, event core.SessionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []core.SessionEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.SessionEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
