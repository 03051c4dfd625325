// Package relay submits forward requests to the sponsor relayer API.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/ports"
	"golang.org/x/time/rate"
)

const StatusRejected = "rejected"

// Config configures the HTTP relayer
type Config struct {
	Endpoint string
	Timeout  time.Duration

	// RequestsPerSecond and Burst bound the client-side send rate
	RequestsPerSecond float64
	Burst             int
}

// HTTPRelayer posts forward meta-transactions to the sponsor API
type HTTPRelayer struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewHTTPRelayer creates a relayer client
func NewHTTPRelayer(cfg Config) ports.Relayer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &HTTPRelayer{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(limit, cfg.Burst),
	}
}

// Forward posts tx and returns the relayer receipt
func (r *HTTPRelayer) Forward(ctx context.Context, tx *core.ForwardMetaTx) (*core.RelayReceipt, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrRelayFailed, err)
	}

	payload, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal forward request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrRelayFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrRelayFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrRelayFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d: %s", core.ErrRelayFailed, resp.StatusCode, bytes.TrimSpace(raw))
	}

	var receipt core.RelayReceipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, fmt.Errorf("%w: malformed receipt: %w", core.ErrRelayFailed, err)
	}
	if receipt.Status == StatusRejected {
		return nil, fmt.Errorf("%w: %s", core.ErrRelayRejected, receipt.Reason)
	}
	return &receipt, nil
}
