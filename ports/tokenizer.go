package ports

import "github.com/layer-3/memowallet/core"

// Tokenizer converts between issued sessions and opaque session ids
type Tokenizer interface {
	SessionToToken(session *core.IssuedSession) (string, error)
	TokenToSession(token string) (*core.IssuedSession, error)

	// VerifySignature checks that signature is address signing the challenge message
	VerifySignature(challenge *core.Challenge, signature string, address string) error
}
