package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/ports"
)

// KVRevocationStore keeps revoked session ids in a ports.KV backend
type KVRevocationStore struct {
	kv     ports.KV
	prefix string
}

// NewRevocationStore creates a revocation store on top of kv
func NewRevocationStore(kv ports.KV) ports.RevocationStore {
	return &KVRevocationStore{
		kv:     kv,
		prefix: "revoked:",
	}
}

// Revoke marks sessionID revoked for ttl. A non-positive ttl is a no-op
// since the session has already expired.
func (s *KVRevocationStore) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.kv.Set(ctx, s.prefix+sessionID, []byte("1"), ttl); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (s *KVRevocationStore) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	if _, err := s.kv.Get(ctx, s.prefix+sessionID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return true, nil
}
