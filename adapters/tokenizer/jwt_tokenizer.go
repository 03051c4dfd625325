package tokenizer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/internal/clock"
	"github.com/layer-3/memowallet/internal/eth"
	"github.com/layer-3/memowallet/ports"
)

const AudienceSession = "memowallet:session"

// JWTTokenizer implements the Tokenizer interface using ES256 JWTs as session ids
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
	clock   clock.Clock
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(signKey *ecdsa.PrivateKey, c clock.Clock) ports.Tokenizer {
	if c == nil {
		c = clock.Real()
	}
	return &JWTTokenizer{signKey: signKey, clock: c}
}

// SessionToToken converts an issued session to a signed JWT
func (j *JWTTokenizer) SessionToToken(session *core.IssuedSession) (string, error) {
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.Address,
			ID:        session.ID,
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
		Allowances: session.Allowances,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signedToken, nil
}

// TokenToSession parses a session JWT and returns the issued session
func (j *JWTTokenizer) TokenToSession(tokenStr string) (*core.IssuedSession, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(AudienceSession), jwt.WithTimeFunc(j.clock.Now), jwt.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, core.ErrTokenExpired
		}
		return nil, fmt.Errorf("failed to parse token: %w", errors.Join(core.ErrInvalidToken, err))
	}

	if !token.Valid {
		return nil, core.ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type: %w", core.ErrInvalidToken)
	}

	session := &core.IssuedSession{
		ID:         claims.ID,
		Address:    claims.Subject,
		Allowances: claims.Allowances,
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}

	return session, nil
}

// VerifySignature verifies a personal_sign signature over the challenge message
func (j *JWTTokenizer) VerifySignature(challenge *core.Challenge, signatureStr string, addressStr string) error {
	if !eth.SameAddress(challenge.Address, addressStr) {
		return fmt.Errorf("challenge was issued for %s: %w", challenge.Address, core.ErrAddressMismatch)
	}

	if err := eth.VerifyTextSignature([]byte(challenge.Message), signatureStr, addressStr); err != nil {
		return fmt.Errorf("personal_sign verification failed: %w", err)
	}

	return nil
}
