package ports

import (
	"context"

	"github.com/layer-3/memowallet/core"
)

// Handshaker proves control of an address to the backend and returns a session id
type Handshaker interface {
	Handshake(ctx context.Context, address string) (*core.HandshakeResult, error)
}

// ChallengeSigner signs a backend challenge message for address
type ChallengeSigner interface {
	SignChallenge(ctx context.Context, address, message string) (string, error)
}
