package core

import (
	"encoding/json"
	"time"
)

// AuthMode decides what happens when the login handshake fails
type AuthMode int

const (
	// AuthModeStrict returns no session when the handshake fails
	AuthModeStrict AuthMode = iota

	// AuthModeDevelopmentFallback synthesizes a mock session when the handshake fails.
	// Never wire this in a production build.
	AuthModeDevelopmentFallback
)

func (m AuthMode) String() string {
	switch m {
	case AuthModeStrict:
		return "strict"
	case AuthModeDevelopmentFallback:
		return "development-fallback"
	default:
		return "unknown"
	}
}

// Challenge represents an authentication challenge
type Challenge struct {
	ID        string    // Unique identifier for the challenge
	Address   string    // Account the challenge was issued for
	Nonce     string    // Random nonce embedded in the message
	Message   string    // Text the account must sign
	IssuedAt  time.Time // When the challenge was created
	ExpiresAt time.Time // When the challenge expires
}

// ChallengeResponse is the wire form of GET /challenge
type ChallengeResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// VerifyRequest is the wire form of POST /verify
type VerifyRequest struct {
	Address     string `json:"address" binding:"required"`
	Signature   string `json:"signature" binding:"required"`
	ChallengeID string `json:"challengeId" binding:"required"`
	Timestamp   int64  `json:"timestamp"` // unix milliseconds
}

// HandshakeResult is the wire form of a successful POST /verify
type HandshakeResult struct {
	SessionID  string          `json:"sessionId"`
	Allowances json.RawMessage `json:"allowances,omitempty"`
}

// Allowances are the quotas a backend grants to a session
type Allowances struct {
	MaxTransactions int      `json:"maxTransactions"`
	Namespaces      []string `json:"namespaces,omitempty"`
}

// IssuedSession is the backend view of a session it has issued
type IssuedSession struct {
	ID         string
	Address    string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Allowances Allowances
}
