package handshake_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/memowallet/adapters/handshake"
	"github.com/layer-3/memowallet/adapters/store"
	"github.com/layer-3/memowallet/adapters/tokenizer"
	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/internal/clock"
	"github.com/layer-3/memowallet/internal/eth"
	"github.com/layer-3/memowallet/service"
	httptransport "github.com/layer-3/memowallet/transport/http"
	"github.com/stretchr/testify/require"
)

type backend struct {
	server *httptest.Server
	auth   *service.AuthService
	clock  *clock.Fake
	events *eventRecorder
}

type eventRecorder struct {
	mu     sync.Mutex
	events []core.SessionEvent
}

func (r *eventRecorder) PublishSessionEvent(ctx context.Context, event core.SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) types() []core.SessionEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.SessionEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	c := clock.NewFake(time.Now().Truncate(time.Second))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	kv := store.NewMemoryStore(c)
	events := &eventRecorder{}
	auth := service.NewAuthService(
		tokenizer.NewJWTTokenizer(key, c),
		store.NewChallengeStore(kv),
		c,
		logger,
		service.DefaultAuthServiceConfig(),
		service.WithRevocations(store.NewRevocationStore(kv)),
		service.WithEvents(events),
	)

	server := httptest.NewServer(httptransport.SetupRouter(auth, logger))
	t.Cleanup(server.Close)
	return &backend{server: server, auth: auth, clock: c, events: events}
}

func TestHandshakeAgainstBackend(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)

	signer, err := eth.SignerFromSecret("grave orchard lantern quiet river")
	require.NoError(t, err)
	client := handshake.NewHTTPHandshaker(b.server.URL+"/", signer, nil, b.clock)

	result, err := client.Handshake(ctx, signer.Address())
	require.NoError(t, err)
	require.NotEmpty(t, result.SessionID)

	var allowances core.Allowances
	require.NoError(t, json.Unmarshal(result.Allowances, &allowances))
	require.Equal(t, 100, allowances.MaxTransactions)
	require.Equal(t, service.Namespaces(), allowances.Namespaces)

	issued, err := b.auth.ValidateSession(ctx, result.SessionID)
	require.NoError(t, err)
	require.Equal(t, signer.Address(), issued.Address)

	t.Run("me endpoint", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, b.server.URL+"/api/me", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+result.SessionID)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEmpty(t, resp.Header.Get("X-Request-ID"))

		var body struct {
			Address string `json:"address"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Equal(t, signer.Address(), body.Address)
	})

	t.Run("me without token", func(t *testing.T) {
		resp, err := http.Get(b.server.URL + "/api/me")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestHandshakeWithWrongSigner(t *testing.T) {
	b := newBackend(t)

	signer, err := eth.SignerFromSecret("grave orchard lantern quiet river")
	require.NoError(t, err)
	other, err := eth.SignerFromSecret("north gate cedar bell")
	require.NoError(t, err)

	client := handshake.NewHTTPHandshaker(b.server.URL, signer, nil, b.clock)
	_, err = client.Handshake(context.Background(), other.Address())
	require.ErrorIs(t, err, core.ErrHandshakeFailed)
	require.ErrorIs(t, err, core.ErrAddressMismatch)
}

// forgingSigner signs with one key but claims another address
type forgingSigner struct{ key *eth.Signer }

func (f forgingSigner) SignChallenge(ctx context.Context, address, message string) (string, error) {
	return f.key.SignChallenge(ctx, f.key.Address(), message)
}

func TestHandshakeRejectsForgedSignature(t *testing.T) {
	b := newBackend(t)

	victim, err := eth.SignerFromSecret("victim secret")
	require.NoError(t, err)
	attacker, err := eth.SignerFromSecret("attacker secret")
	require.NoError(t, err)

	client := handshake.NewHTTPHandshaker(b.server.URL, forgingSigner{attacker}, nil, b.clock)
	_, err = client.Handshake(context.Background(), victim.Address())
	require.ErrorIs(t, err, core.ErrHandshakeFailed)
	require.Contains(t, err.Error(), "Invalid signature")
}

func TestHandshakeBackendDown(t *testing.T) {
	signer, err := eth.SignerFromSecret("grave orchard lantern quiet river")
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := handshake.NewHTTPHandshaker(server.URL, signer, nil, nil)
	_, err = client.Handshake(context.Background(), signer.Address())
	require.ErrorIs(t, err, core.ErrHandshakeFailed)
}

func TestChallengeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)

	signer, err := eth.SignerFromSecret("grave orchard lantern quiet river")
	require.NoError(t, err)

	challenge, err := b.auth.CreateChallenge(ctx, signer.Address())
	require.NoError(t, err)
	sig, err := signer.SignChallenge(ctx, signer.Address(), challenge.Message)
	require.NoError(t, err)

	req := core.VerifyRequest{
		Address:     signer.Address(),
		Signature:   sig,
		ChallengeID: challenge.ID,
		Timestamp:   b.clock.Now().UnixMilli(),
	}
	_, err = b.auth.Verify(ctx, req)
	require.NoError(t, err)

	_, err = b.auth.Verify(ctx, req)
	require.ErrorIs(t, err, core.ErrInvalidChallenge)
}

func TestVerifyRejectsSkewAndExpiry(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)

	signer, err := eth.SignerFromSecret("grave orchard lantern quiet river")
	require.NoError(t, err)

	t.Run("timestamp skew", func(t *testing.T) {
		challenge, err := b.auth.CreateChallenge(ctx, signer.Address())
		require.NoError(t, err)
		sig, err := signer.SignChallenge(ctx, signer.Address(), challenge.Message)
		require.NoError(t, err)

		_, err = b.auth.Verify(ctx, core.VerifyRequest{
			Address:     signer.Address(),
			Signature:   sig,
			ChallengeID: challenge.ID,
			Timestamp:   b.clock.Now().Add(-10 * time.Minute).UnixMilli(),
		})
		require.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("expired challenge", func(t *testing.T) {
		challenge, err := b.auth.CreateChallenge(ctx, signer.Address())
		require.NoError(t, err)
		sig, err := signer.SignChallenge(ctx, signer.Address(), challenge.Message)
		require.NoError(t, err)

		b.clock.Advance(5 * time.Minute)
		_, err = b.auth.Verify(ctx, core.VerifyRequest{
			Address:     signer.Address(),
			Signature:   sig,
			ChallengeID: challenge.ID,
		})
		require.Error(t, err)
	})

	t.Run("invalid address", func(t *testing.T) {
		_, err := b.auth.CreateChallenge(ctx, "not-an-address")
		require.ErrorIs(t, err, core.ErrInvalidAddress)
	})
}

func TestRevokeSession(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)

	signer, err := eth.SignerFromSecret("grave orchard lantern quiet river")
	require.NoError(t, err)
	client := handshake.NewHTTPHandshaker(b.server.URL, signer, nil, b.clock)

	result, err := client.Handshake(ctx, signer.Address())
	require.NoError(t, err)

	require.NoError(t, client.Revoke(ctx, result.SessionID))

	_, err = b.auth.ValidateSession(ctx, result.SessionID)
	require.ErrorIs(t, err, core.ErrTokenRevoked)

	err = client.Revoke(ctx, result.SessionID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Token revoked")

	require.Equal(t, []core.SessionEventType{core.SessionCreated, core.SessionCleared}, b.events.types())
}
