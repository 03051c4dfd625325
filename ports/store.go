package ports

import (
	"context"
	"time"

	"github.com/layer-3/memowallet/core"
)

// KV is a raw key/value backend with per-key expiry
type KV interface {
	// Set stores value under key. A ttl <= 0 never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns core.ErrNotFound for missing or expired keys
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
}

// SecureStore persists encrypted values with an absolute expiry.
// Every backend failure is returned wrapped in core.ErrStorage; callers
// decide whether to downgrade it to "absent".
type SecureStore interface {
	SetItem(ctx context.Context, key string, value any, ttl time.Duration) error
	GetItem(ctx context.Context, key string, out any) error
	RemoveItem(ctx context.Context, key string) error
}

// ChallengeStore keeps issued handshake challenges until they are used
type ChallengeStore interface {
	SaveChallenge(ctx context.Context, challenge *core.Challenge, ttl time.Duration) error

	// ConsumeChallenge returns the challenge and deletes it so it can be used once
	ConsumeChallenge(ctx context.Context, id string) (*core.Challenge, error)
}

// RevocationStore remembers logged-out session ids until they would have expired
type RevocationStore interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}
