package store

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/internal/clock"
	"github.com/layer-3/memowallet/ports"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length of a secure store encryption key
const KeySize = chacha20poly1305.KeySize

type envelope struct {
	Value     json.RawMessage `json:"v"`
	ExpiresAt int64           `json:"exp,omitempty"` // unix milliseconds, 0 never expires
}

// SecureStore implements ports.SecureStore on top of a ports.KV backend.
// Values are sealed with XChaCha20-Poly1305; the key name is bound as
// associated data so a ciphertext cannot be replayed under another key.
type SecureStore struct {
	backend ports.KV
	key     []byte
	clock   clock.Clock
}

// NewSecureStore creates a secure store. key must be KeySize bytes.
func NewSecureStore(backend ports.KV, key []byte, c clock.Clock) (*SecureStore, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("secure store key must be %d bytes, got %d", KeySize, len(key))
	}
	if c == nil {
		c = clock.Real()
	}
	return &SecureStore{
		backend: backend,
		key:     append([]byte(nil), key...),
		clock:   c,
	}, nil
}

// SetItem serializes value with an absolute expiry derived from ttl
func (s *SecureStore) SetItem(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, errors.Join(core.ErrStorage, err))
	}

	env := envelope{Value: raw}
	if ttl > 0 {
		env.ExpiresAt = s.clock.Now().Add(ttl).UnixMilli()
	}
	plain, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, errors.Join(core.ErrStorage, err))
	}

	sealed, err := s.seal(key, plain)
	if err != nil {
		return err
	}
	if err := s.backend.Set(ctx, key, sealed, ttl); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, errors.Join(core.ErrStorage, err))
	}
	return nil
}

// GetItem decodes the value stored under key into out.
// Missing and expired keys return core.ErrNotFound; expired keys are purged.
// Envelopes that fail to decrypt are left in place and reported as core.ErrStorage.
func (s *SecureStore) GetItem(ctx context.Context, key string, out any) error {
	sealed, err := s.backend.Get(ctx, key)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.ErrNotFound
		}
		return fmt.Errorf("failed to read %s: %w", key, errors.Join(core.ErrStorage, err))
	}

	plain, err := s.open(key, sealed)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(plain, &env); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, errors.Join(core.ErrStorage, err))
	}

	if env.ExpiresAt != 0 && s.clock.Now().UnixMilli() >= env.ExpiresAt {
		if err := s.backend.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to purge %s: %w", key, errors.Join(core.ErrStorage, err))
		}
		return core.ErrNotFound
	}

	if err := json.Unmarshal(env.Value, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, errors.Join(core.ErrStorage, err))
	}
	return nil
}

// RemoveItem deletes key unconditionally
func (s *SecureStore) RemoveItem(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, errors.Join(core.ErrStorage, err))
	}
	return nil
}

func (s *SecureStore) seal(key string, plain []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", errors.Join(core.ErrStorage, err))
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", errors.Join(core.ErrStorage, err))
	}
	return aead.Seal(nonce, nonce, plain, []byte(key)), nil
}

func (s *SecureStore) open(key string, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", errors.Join(core.ErrStorage, err))
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("%s: ciphertext too short: %w", key, core.ErrStorage)
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("%s: decryption failed: %w", key, core.ErrStorage)
	}
	return plain, nil
}
