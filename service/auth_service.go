package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/internal/clock"
	"github.com/layer-3/memowallet/internal/eth"
	"github.com/layer-3/memowallet/ports"
)

// AuthServiceConfig tunes the reference handshake backend
type AuthServiceConfig struct {
	ChallengeTTL  time.Duration
	SessionTTL    time.Duration
	MaxClockSkew  time.Duration
	Allowances    core.Allowances
	SignInMessage string
}

// DefaultAuthServiceConfig returns the backend defaults
func DefaultAuthServiceConfig() AuthServiceConfig {
	return AuthServiceConfig{
		ChallengeTTL:  5 * time.Minute,
		SessionTTL:    DefaultSessionDuration,
		MaxClockSkew:  5 * time.Minute,
		Allowances:    core.Allowances{MaxTransactions: 100, Namespaces: Namespaces()},
		SignInMessage: "Sign in to memowallet",
	}
}

// AuthService handles the backend side of the challenge/verify handshake
type AuthService struct {
	tokenizer  ports.Tokenizer
	challenges ports.ChallengeStore
	clock      clock.Clock
	logger     *slog.Logger
	cfg        AuthServiceConfig

	revocations ports.RevocationStore
	events      ports.EventPublisher
}

// AuthServiceOption configures an AuthService
type AuthServiceOption func(*AuthService)

// WithRevocations enables logout. Without it Logout only publishes the event.
func WithRevocations(revocations ports.RevocationStore) AuthServiceOption {
	return func(s *AuthService) { s.revocations = revocations }
}

// WithEvents publishes issued and revoked sessions
func WithEvents(events ports.EventPublisher) AuthServiceOption {
	return func(s *AuthService) { s.events = events }
}

// NewAuthService creates a new authentication service
func NewAuthService(
	tokenizer ports.Tokenizer,
	challenges ports.ChallengeStore,
	c clock.Clock,
	logger *slog.Logger,
	cfg AuthServiceConfig,
	opts ...AuthServiceOption,
) *AuthService {
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &AuthService{
		tokenizer:  tokenizer,
		challenges: challenges,
		clock:      c,
		logger:     logger.With("component", "auth"),
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateChallenge generates a new single-use challenge for address
func (s *AuthService) CreateChallenge(ctx context.Context, address string) (*core.Challenge, error) {
	address, err := eth.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := s.clock.Now()
	challenge := &core.Challenge{
		ID:        uuid.New().String(),
		Address:   address,
		Nonce:     hex.EncodeToString(nonceBytes),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.ChallengeTTL),
	}
	challenge.Message = fmt.Sprintf("%s\nAddress: %s\nNonce: %s\nIssued At: %s",
		s.cfg.SignInMessage, address, challenge.Nonce, now.UTC().Format(time.RFC3339))

	if err := s.challenges.SaveChallenge(ctx, challenge, s.cfg.ChallengeTTL); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	return challenge, nil
}

// Verify consumes the challenge, checks the signature and issues a session id
func (s *AuthService) Verify(ctx context.Context, req core.VerifyRequest) (*core.HandshakeResult, error) {
	challenge, err := s.challenges.ConsumeChallenge(ctx, req.ChallengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}

	now := s.clock.Now()
	if !now.Before(challenge.ExpiresAt) {
		return nil, core.ErrChallengeExpired
	}

	if req.Timestamp != 0 {
		skew := now.Sub(time.UnixMilli(req.Timestamp))
		if skew > s.cfg.MaxClockSkew || skew < -s.cfg.MaxClockSkew {
			return nil, &core.ValidationError{Field: "timestamp", Reason: "outside the accepted clock skew"}
		}
	}

	if err := s.tokenizer.VerifySignature(challenge, req.Signature, req.Address); err != nil {
		return nil, fmt.Errorf("signature verification failed: %w", err)
	}

	session := &core.IssuedSession{
		ID:         uuid.New().String(),
		Address:    challenge.Address,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.cfg.SessionTTL),
		Allowances: s.cfg.Allowances,
	}

	token, err := s.tokenizer.SessionToToken(session)
	if err != nil {
		return nil, fmt.Errorf("failed to create session token: %w", err)
	}

	allowances, err := json.Marshal(session.Allowances)
	if err != nil {
		return nil, fmt.Errorf("failed to encode allowances: %w", err)
	}

	s.logger.Info("session issued", "address", session.Address, "session_id", session.ID)
	s.publish(ctx, core.SessionCreated, session, "")
	return &core.HandshakeResult{SessionID: token, Allowances: allowances}, nil
}

// ValidateSession parses a session id issued by Verify
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*core.IssuedSession, error) {
	session, err := s.tokenizer.TokenToSession(token)
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}

	if !s.clock.Now().Before(session.ExpiresAt) {
		return nil, core.ErrTokenExpired
	}

	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, core.ErrTokenRevoked
		}
	}

	return session, nil
}

// Logout revokes session for the rest of its lifetime
func (s *AuthService) Logout(ctx context.Context, session *core.IssuedSession) error {
	if s.revocations != nil {
		if err := s.revocations.Revoke(ctx, session.ID, session.ExpiresAt.Sub(s.clock.Now())); err != nil {
			return err
		}
	}

	s.logger.Info("session revoked", "address", session.Address, "session_id", session.ID)
	s.publish(ctx, core.SessionCleared, session, "logout")
	return nil
}

func (s *AuthService) publish(ctx context.Context, typ core.SessionEventType, session *core.IssuedSession, reason string) {
	if s.events == nil {
		return
	}
	event := core.SessionEvent{
		Type:      typ,
		Address:   session.Address,
		SessionID: session.ID,
		Reason:    reason,
		At:        s.clock.Now(),
	}
	if err := s.events.PublishSessionEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish session event", "type", typ, "error", err)
	}
}
