package tokenizer

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/memowallet/core"
)

// SessionClaims combines standard claims with the session allowances
type SessionClaims struct {
	jwt.RegisteredClaims
	Allowances core.Allowances `json:"allowances"`
}
