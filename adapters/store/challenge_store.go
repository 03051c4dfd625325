package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/ports"
)

// KVChallengeStore keeps handshake challenges in a ports.KV backend
type KVChallengeStore struct {
	kv     ports.KV
	prefix string
}

// NewChallengeStore creates a challenge store on top of kv
func NewChallengeStore(kv ports.KV) ports.ChallengeStore {
	return &KVChallengeStore{
		kv:     kv,
		prefix: "challenge:",
	}
}

// SaveChallenge stores a challenge until it is consumed or ttl elapses
func (s *KVChallengeStore) SaveChallenge(ctx context.Context, challenge *core.Challenge, ttl time.Duration) error {
	payload, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}
	if err := s.kv.Set(ctx, s.prefix+challenge.ID, payload, ttl); err != nil {
		return fmt.Errorf("failed to save challenge: %w", err)
	}
	return nil
}

// ConsumeChallenge loads and deletes a challenge.
// Unknown, expired and already used challenges all return core.ErrInvalidChallenge.
func (s *KVChallengeStore) ConsumeChallenge(ctx context.Context, id string) (*core.Challenge, error) {
	key := s.prefix + id

	payload, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrInvalidChallenge
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	if err := s.kv.Delete(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to consume challenge: %w", err)
	}

	var challenge core.Challenge
	if err := json.Unmarshal(payload, &challenge); err != nil {
		return nil, fmt.Errorf("failed to unmarshal challenge: %w", err)
	}
	return &challenge, nil
}
