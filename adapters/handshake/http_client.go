// Package handshake implements the client side of the challenge/verify login.
package handshake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/internal/clock"
	"github.com/layer-3/memowallet/ports"
)

// HTTPHandshaker talks to a handshake backend over HTTP
type HTTPHandshaker struct {
	baseURL string
	client  *http.Client
	signer  ports.ChallengeSigner
	clock   clock.Clock
}

// NewHTTPHandshaker creates a handshaker for the backend at baseURL. client may be nil.
func NewHTTPHandshaker(baseURL string, signer ports.ChallengeSigner, client *http.Client, c clock.Clock) *HTTPHandshaker {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if c == nil {
		c = clock.Real()
	}
	return &HTTPHandshaker{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		signer:  signer,
		clock:   c,
	}
}

// Handshake fetches a challenge for address, signs it and exchanges it for a session id
func (h *HTTPHandshaker) Handshake(ctx context.Context, address string) (*core.HandshakeResult, error) {
	var challenge core.ChallengeResponse
	if err := h.do(ctx, http.MethodGet, "/challenge?address="+url.QueryEscape(address), "", nil, &challenge); err != nil {
		return nil, fmt.Errorf("%w: challenge: %w", core.ErrHandshakeFailed, err)
	}
	if challenge.ID == "" || challenge.Message == "" {
		return nil, fmt.Errorf("%w: empty challenge", core.ErrHandshakeFailed)
	}

	signature, err := h.signer.SignChallenge(ctx, address, challenge.Message)
	if err != nil {
		return nil, fmt.Errorf("%w: sign: %w", core.ErrHandshakeFailed, err)
	}

	req := core.VerifyRequest{
		Address:     address,
		Signature:   signature,
		ChallengeID: challenge.ID,
		Timestamp:   h.clock.Now().UnixMilli(),
	}
	var result core.HandshakeResult
	if err := h.do(ctx, http.MethodPost, "/verify", "", req, &result); err != nil {
		return nil, fmt.Errorf("%w: verify: %w", core.ErrHandshakeFailed, err)
	}
	if result.SessionID == "" {
		return nil, fmt.Errorf("%w: backend returned no session id", core.ErrHandshakeFailed)
	}
	return &result, nil
}

// Revoke logs sessionID out on the backend
func (h *HTTPHandshaker) Revoke(ctx context.Context, sessionID string) error {
	if err := h.do(ctx, http.MethodPost, "/api/logout", sessionID, nil, nil); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (h *HTTPHandshaker) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Join(errors.New("malformed response"), err)
	}
	return nil
}
